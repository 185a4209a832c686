package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/robertarktes/cinema-booking/internal/domain"
)

// Catalog is the read-only view of the movie/showtime catalog. The catalog
// itself is owned by another subsystem; the booking core only resolves
// existence, screen dimensions, price and start time.
type Catalog interface {
	GetShowtime(ctx context.Context, id int64) (*domain.Showtime, error)
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Audit records lifecycle transitions for traceability. Writes are
// best-effort: an audit failure never fails the transition.
type Audit interface {
	LogTransition(ctx context.Context, reservationID uuid.UUID, from, to domain.ReservationStatus, actor string) error

	// Transitions returns the recorded trail for one reservation,
	// oldest first.
	Transitions(ctx context.Context, reservationID uuid.UUID) ([]domain.Transition, error)
}

// SeatMapCache caches the seat-map projection per showtime for a short
// TTL and is invalidated on every allocation change.
type SeatMapCache interface {
	Get(ctx context.Context, showtimeID int64) (*domain.SeatMap, error)
	Set(ctx context.Context, m *domain.SeatMap) error
	Invalidate(ctx context.Context, showtimeID int64) error
}

// EventDeduper remembers gateway webhook event ids so redeliveries short-
// circuit before touching the store. Ids are recorded only after the
// event is applied: a delivery that failed transiently must stay
// unrecorded so the gateway's retry is processed, not swallowed.
type EventDeduper interface {
	// Seen reports whether the id was already recorded.
	Seen(ctx context.Context, eventID string) (bool, error)
	// MarkSeen records the id.
	MarkSeen(ctx context.Context, eventID string) error
}
