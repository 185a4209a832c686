package domain

import "time"

// Showtime is the catalog's view of a screening: enough to price seats,
// bounds-check coordinates and enforce the refund window. It is read-only
// input for the booking core.
type Showtime struct {
	ID          int64
	MovieTitle  string
	ScreenName  string
	TotalRows   int
	SeatsPerRow int
	Price       float64
	StartTime   time.Time
}

// RefundDeadline is the last instant a completed reservation for this
// showtime may still be refunded.
func (s *Showtime) RefundDeadline(cutoff time.Duration) time.Time {
	return s.StartTime.Add(-cutoff)
}
