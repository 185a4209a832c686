package domain_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/cinema-booking/internal/domain"
)

func TestSeatLabel(t *testing.T) {
	assert.Equal(t, "R3S6", domain.Seat{Row: 3, Number: 6}.Label())
	assert.Equal(t, "R10S12", domain.Seat{Row: 10, Number: 12}.Label())
}

func TestValidateSeats(t *testing.T) {
	showtime := &domain.Showtime{ScreenName: "Screen 1", TotalRows: 5, SeatsPerRow: 8}

	tests := []struct {
		name    string
		seats   []domain.Seat
		wantErr bool
	}{
		{"valid single", []domain.Seat{{Row: 1, Number: 1}}, false},
		{"valid corner", []domain.Seat{{Row: 5, Number: 8}}, false},
		{"empty", nil, true},
		{"duplicate", []domain.Seat{{Row: 2, Number: 3}, {Row: 2, Number: 3}}, true},
		{"row too low", []domain.Seat{{Row: 0, Number: 1}}, true},
		{"row too high", []domain.Seat{{Row: 6, Number: 1}}, true},
		{"seat too low", []domain.Seat{{Row: 1, Number: 0}}, true},
		{"seat too high", []domain.Seat{{Row: 1, Number: 9}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidateSeats(showtime, tt.seats)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrValidation), "expected validation error, got %v", err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFormatCheckoutDescription(t *testing.T) {
	// Thursday, 8 PM UTC.
	start := time.Date(2026, 3, 5, 20, 0, 0, 0, time.UTC)

	got := domain.FormatCheckoutDescription([]domain.Seat{{Row: 3, Number: 6}, {Row: 3, Number: 7}}, start)
	assert.Equal(t, "Seats R3S6, R3S7, Showtime on Thursday @ 8:00 PM", got)

	got = domain.FormatCheckoutDescription([]domain.Seat{{Row: 3, Number: 6}}, start)
	assert.Equal(t, "Seat R3S6, Showtime on Thursday @ 8:00 PM", got)
}
