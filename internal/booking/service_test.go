package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/cinema-booking/internal/booking"
	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/ports/portstest"
)

type fixture struct {
	store   *portstest.FakeStore
	catalog *portstest.FakeCatalog
	gateway *portstest.FakeGateway
	cache   *portstest.FakeCache
	svc     *booking.Service

	userID   uuid.UUID
	showtime *domain.Showtime
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   portstest.NewFakeStore(),
		catalog: portstest.NewFakeCatalog(),
		gateway: &portstest.FakeGateway{},
		cache:   portstest.NewFakeCache(),
		userID:  uuid.New(),
	}
	f.showtime = &domain.Showtime{
		ID:          1,
		MovieTitle:  "Dune",
		ScreenName:  "Screen 1",
		TotalRows:   10,
		SeatsPerRow: 10,
		Price:       12.00,
		StartTime:   time.Now().UTC().Add(48 * time.Hour),
	}
	f.catalog.Showtimes[f.showtime.ID] = f.showtime
	f.catalog.Users[f.userID] = true

	f.svc = booking.NewService(f.store, f.catalog, f.gateway, f.cache, observability.NewLogger(), 30*time.Minute)
	return f
}

func TestCreateReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seats := []domain.Seat{{Row: 3, Number: 6}, {Row: 3, Number: 7}}

	res, err := f.svc.CreateReservation(ctx, f.userID, f.showtime.ID, seats)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, res.Status)
	assert.InDelta(t, 24.00, res.TotalPrice, 1e-9)
	assert.NotEmpty(t, res.SessionURL)

	require.Len(t, f.gateway.CreatedSessions, 1)
	p := f.gateway.CreatedSessions[0]
	assert.Equal(t, int64(1200), p.UnitAmount)
	assert.Equal(t, int64(2), p.Quantity)
	assert.Equal(t, "Dune Reservation", p.ProductName)

	stored, err := f.store.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, stored.SessionID)
}

func TestCreateReservationUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateReservation(context.Background(), uuid.New(), f.showtime.ID, []domain.Seat{{Row: 1, Number: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Empty(t, f.gateway.CreatedSessions)
}

func TestCreateReservationInvalidSeats(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateReservation(context.Background(), f.userID, f.showtime.ID, []domain.Seat{{Row: 99, Number: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCreateReservationSeatConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seats := []domain.Seat{{Row: 5, Number: 5}}

	_, err := f.svc.CreateReservation(ctx, f.userID, f.showtime.ID, seats)
	require.NoError(t, err)

	otherUser := uuid.New()
	f.catalog.Users[otherUser] = true
	_, err = f.svc.CreateReservation(ctx, otherUser, f.showtime.ID, seats)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict), "expected conflict, got %v", err)
	// No second session was opened for the losing request.
	assert.Len(t, f.gateway.CreatedSessions, 1)
}

func TestCreateReservationGatewayFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seat := domain.Seat{Row: 2, Number: 2}

	f.gateway.CreateErr = errors.Wrap(domain.ErrExternalService, "stripe is down")

	_, err := f.svc.CreateReservation(ctx, f.userID, f.showtime.ID, []domain.Seat{seat})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExternalService))

	// The compensating delete released the seat, so a retry succeeds.
	assert.False(t, f.store.HoldsSeat(f.showtime.ID, seat))
	f.gateway.CreateErr = nil
	_, err = f.svc.CreateReservation(ctx, f.userID, f.showtime.ID, []domain.Seat{seat})
	require.NoError(t, err)
}

func TestCreateReservationSessionPersistFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seat := domain.Seat{Row: 4, Number: 4}

	f.store.SetSessionErr = errors.New("db down")

	_, err := f.svc.CreateReservation(ctx, f.userID, f.showtime.ID, []domain.Seat{seat})
	require.Error(t, err)

	// The orphaned session was expired at the gateway so the customer
	// cannot pay for seats that were released.
	require.Len(t, f.gateway.CreatedSessions, 1)
	require.Len(t, f.gateway.ExpiredSessions, 1)
	assert.False(t, f.store.HoldsSeat(f.showtime.ID, seat))

	f.store.SetSessionErr = nil
	_, err = f.svc.CreateReservation(ctx, f.userID, f.showtime.ID, []domain.Seat{seat})
	require.NoError(t, err)
}

func TestGetSeatMap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateReservation(ctx, f.userID, f.showtime.ID, []domain.Seat{{Row: 3, Number: 6}})
	require.NoError(t, err)

	m, err := f.svc.GetSeatMap(ctx, f.showtime.ID)
	require.NoError(t, err)
	assert.True(t, m.Rows[2][5])
	assert.False(t, m.Rows[0][0])

	// Second read is served from the cache.
	cached, err := f.cache.Get(ctx, f.showtime.ID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	m2, err := f.svc.GetSeatMap(ctx, f.showtime.ID)
	require.NoError(t, err)
	assert.Equal(t, m, m2)
}

func TestGetSeatMapUnknownShowtime(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetSeatMap(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRevenueCountsOnlyCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateReservation(ctx, f.userID, f.showtime.ID, []domain.Seat{{Row: 1, Number: 1}})
	require.NoError(t, err)
	_, err = f.svc.CreateReservation(ctx, f.userID, f.showtime.ID, []domain.Seat{{Row: 1, Number: 2}})
	require.NoError(t, err)

	total, err := f.svc.Revenue(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	f.store.Reservations[res.ID].Status = domain.StatusCompleted
	total, err = f.svc.Revenue(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 12.00, total, 1e-9)
}
