package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/cinema-booking/internal/domain"
)

func TestNewReservation(t *testing.T) {
	showtime := &domain.Showtime{
		ID:          42,
		MovieTitle:  "Dune",
		ScreenName:  "Screen 1",
		TotalRows:   10,
		SeatsPerRow: 12,
		Price:       15.50,
		StartTime:   time.Date(2026, 3, 5, 20, 0, 0, 0, time.UTC),
	}
	userID := uuid.New()
	seats := []domain.Seat{{Row: 3, Number: 6}, {Row: 3, Number: 7}, {Row: 3, Number: 8}}

	before := time.Now().UTC()
	res := domain.NewReservation(userID, showtime, seats, 30*time.Minute)

	assert.Equal(t, domain.StatusPending, res.Status)
	assert.Equal(t, userID, res.UserID)
	assert.Equal(t, showtime.ID, res.ShowtimeID)
	assert.InDelta(t, 46.50, res.TotalPrice, 1e-9)
	assert.Nil(t, res.ChargeID)

	require.False(t, res.ExpiresAt.Before(before.Add(30*time.Minute)))
	require.True(t, res.ExpiresAt.Before(before.Add(31*time.Minute)))
}

func TestStatusHoldsSeats(t *testing.T) {
	assert.True(t, domain.StatusPending.HoldsSeats())
	assert.True(t, domain.StatusCompleted.HoldsSeats())
	assert.False(t, domain.StatusCancelled.HoldsSeats())
	assert.False(t, domain.StatusExpired.HoldsSeats())
	assert.False(t, domain.StatusRefunded.HoldsSeats())
}

func TestStatusValid(t *testing.T) {
	for _, s := range []domain.ReservationStatus{
		domain.StatusPending, domain.StatusCompleted, domain.StatusCancelled,
		domain.StatusExpired, domain.StatusRefunded,
	} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, domain.ReservationStatus("PAID").Valid())
	assert.False(t, domain.ReservationStatus("").Valid())
}

func TestRefundDeadline(t *testing.T) {
	start := time.Date(2026, 3, 5, 20, 0, 0, 0, time.UTC)
	showtime := &domain.Showtime{StartTime: start}

	deadline := showtime.RefundDeadline(15 * time.Minute)
	assert.Equal(t, start.Add(-15*time.Minute), deadline)
}
