package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Seat is a single 1-based (row, seat) coordinate. It has no lifecycle of
// its own: an allocation exists only while its owning reservation holds
// seats.
type Seat struct {
	Row    int `json:"row_number"`
	Number int `json:"seat_number"`
}

// Label renders a seat in the "R3S6" form used in conflict messages and
// checkout descriptions.
func (s Seat) Label() string {
	return fmt.Sprintf("R%dS%d", s.Row, s.Number)
}

// ValidateSeats checks a requested seat set against the screen dimensions
// of a showtime. It rejects empty requests, duplicate coordinates within
// the request, and coordinates outside [1, TotalRows] x [1, SeatsPerRow].
func ValidateSeats(showtime *Showtime, seats []Seat) error {
	if len(seats) == 0 {
		return errors.Wrap(ErrValidation, "no seats requested")
	}
	seen := make(map[Seat]struct{}, len(seats))
	for _, seat := range seats {
		if _, dup := seen[seat]; dup {
			return errors.Wrapf(ErrValidation, "seat %s requested twice", seat.Label())
		}
		seen[seat] = struct{}{}

		if seat.Row < 1 || seat.Row > showtime.TotalRows {
			return errors.Wrapf(ErrValidation,
				"row number %d is invalid for screen %s: total rows %d",
				seat.Row, showtime.ScreenName, showtime.TotalRows)
		}
		if seat.Number < 1 || seat.Number > showtime.SeatsPerRow {
			return errors.Wrapf(ErrValidation,
				"seat number %d is invalid for screen %s: seats per row %d",
				seat.Number, showtime.ScreenName, showtime.SeatsPerRow)
		}
	}
	return nil
}

// FormatCheckoutDescription builds the human-readable line shown on the
// checkout page, e.g. "Seats R3S6, R3S7, Showtime on Thursday @ 8:00 PM".
// Times are rendered in UTC so the description matches the stored
// showtime rather than the server's local zone.
func FormatCheckoutDescription(seats []Seat, startTime time.Time) string {
	labels := make([]string, len(seats))
	for i, s := range seats {
		labels[i] = s.Label()
	}
	noun := "Seat"
	if len(seats) > 1 {
		noun = "Seats"
	}
	t := startTime.UTC()
	return fmt.Sprintf("%s %s, Showtime on %s @ %s",
		noun, strings.Join(labels, ", "), t.Format("Monday"), t.Format("3:04 PM"))
}
