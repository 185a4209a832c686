package domain

// SeatMap is the read-only occupancy projection for one showtime. Rows is
// indexed [row-1][seat-1]; true means the coordinate is held by a
// reservation in a seat-holding status.
type SeatMap struct {
	ShowtimeID  int64    `json:"showtime_id"`
	ScreenName  string   `json:"screen_name"`
	TotalRows   int      `json:"total_rows"`
	SeatsPerRow int      `json:"seats_per_row"`
	Rows        [][]bool `json:"rows"`
}

// BuildSeatMap projects the occupied allocations onto the screen grid.
// Occupied coordinates outside the grid are ignored rather than panicking;
// they cannot be produced by a bounds-checked write path.
func BuildSeatMap(showtime *Showtime, occupied []Seat) SeatMap {
	rows := make([][]bool, showtime.TotalRows)
	for i := range rows {
		rows[i] = make([]bool, showtime.SeatsPerRow)
	}
	for _, s := range occupied {
		if s.Row < 1 || s.Row > showtime.TotalRows || s.Number < 1 || s.Number > showtime.SeatsPerRow {
			continue
		}
		rows[s.Row-1][s.Number-1] = true
	}
	return SeatMap{
		ShowtimeID:  showtime.ID,
		ScreenName:  showtime.ScreenName,
		TotalRows:   showtime.TotalRows,
		SeatsPerRow: showtime.SeatsPerRow,
		Rows:        rows,
	}
}
