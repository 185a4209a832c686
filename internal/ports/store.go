// Package ports defines the interfaces the booking and lifecycle services
// depend on. Adapters under internal/adapters provide the production
// implementations; tests substitute in-memory fakes.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robertarktes/cinema-booking/internal/domain"
)

// OutboxRecord is an event staged in the same transaction as the state
// change it describes, relayed to the broker by the outbox publisher.
type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

// NewOutboxRecord stages a reservation event for the outbox relay.
func NewOutboxRecord(aggregateID uuid.UUID, eventType string, payload []byte) OutboxRecord {
	return OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "reservation",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        "NEW",
		DedupeKey:     uuid.New().String(),
	}
}

// Tx is the transactional view of the reservation store. Every mutation of
// a reservation (status plus seat set plus outbox record) happens through
// one Tx so the commit is all-or-nothing.
type Tx interface {
	// InsertReservation persists a reservation together with its seat
	// allocations. A seat already allocated for the same showtime fails
	// the whole insert with domain.ErrConflict naming the seat.
	InsertReservation(ctx context.Context, r *domain.Reservation) error

	// GetReservationForUpdate loads a reservation with its allocations,
	// locked for the duration of the transaction.
	GetReservationForUpdate(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)

	// DeleteSeatAllocations releases every seat held by the reservation.
	DeleteSeatAllocations(ctx context.Context, reservationID uuid.UUID) error

	// UpdateStatus moves the reservation to the given status. A non-nil
	// chargeID is recorded alongside.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus, chargeID *string) error

	// DeleteReservation removes the reservation row and its allocations.
	// Used only to compensate a create whose checkout session failed.
	DeleteReservation(ctx context.Context, id uuid.UUID) error

	InsertOutbox(ctx context.Context, rec OutboxRecord) error
}

// Store is the durable reservation store.
type Store interface {
	// WithTx runs fn inside a serializable transaction. A serialization
	// failure surfaces as domain.ErrSerializationFailure; any error from
	// fn rolls the transaction back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	ListUserReservations(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error)
	ListReservations(ctx context.Context) ([]domain.Reservation, error)

	// OccupiedSeats returns every allocation for the showtime. Because
	// allocations exist only for seat-holding reservations, this is the
	// same predicate the conflict check uses.
	OccupiedSeats(ctx context.Context, showtimeID int64) ([]domain.Seat, error)

	// SetPaymentSession stores the checkout session id and URL after the
	// reservation row is committed.
	SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID, sessionURL string) error

	// ExpiredPending lists PENDING reservations whose session expiry
	// horizon passed before now. Backstop for lost expiry webhooks.
	ExpiredPending(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	// Revenue sums total_price over COMPLETED reservations.
	Revenue(ctx context.Context) (float64, error)
}

// OutboxStore is the relay side of the outbox, polled by the publisher
// worker outside any request transaction.
type OutboxStore interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time, dedupeKey string) error
}
