package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusCompleted ReservationStatus = "COMPLETED"
	StatusCancelled ReservationStatus = "CANCELLED"
	StatusExpired   ReservationStatus = "EXPIRED"
	StatusRefunded  ReservationStatus = "REFUNDED"
)

// HoldsSeats reports whether a reservation in this status still owns its
// seat allocations. Allocations are hard-deleted on transition to any
// other status.
func (s ReservationStatus) HoldsSeats() bool {
	return s == StatusPending || s == StatusCompleted
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

type Reservation struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ShowtimeID int64
	Status     ReservationStatus
	Seats      []Seat
	TotalPrice float64
	SessionID  string
	SessionURL string
	ChargeID   *string // nil until payment confirmation
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewReservation builds a PENDING reservation for the given showtime.
// Total price is always price-per-seat times seat count; the checkout
// session shares the same expiry horizon.
func NewReservation(userID uuid.UUID, showtime *Showtime, seats []Seat, sessionTTL time.Duration) Reservation {
	now := time.Now().UTC()
	return Reservation{
		ID:         uuid.New(),
		UserID:     userID,
		ShowtimeID: showtime.ID,
		Status:     StatusPending,
		Seats:      seats,
		TotalPrice: showtime.Price * float64(len(seats)),
		ExpiresAt:  now.Add(sessionTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// OwnedBy reports whether the given user may cancel or refund this
// reservation.
func (r *Reservation) OwnedBy(userID uuid.UUID) bool {
	return r.UserID == userID
}

// Transition is one recorded status change in the audit trail.
type Transition struct {
	ReservationID uuid.UUID         `json:"reservation_id"`
	From          ReservationStatus `json:"from"`
	To            ReservationStatus `json:"to"`
	Actor         string            `json:"actor"`
	At            time.Time         `json:"at"`
}
