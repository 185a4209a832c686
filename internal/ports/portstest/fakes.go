// Package portstest provides in-memory implementations of the ports
// interfaces for service-level tests. The fake store enforces the same
// seat uniqueness the production store gets from its constraint, so
// conflict paths behave identically.
package portstest

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/ports"
)

type allocKey struct {
	ShowtimeID int64
	Row        int
	Number     int
}

// FakeStore keeps reservations, allocations and outbox records in memory.
// WithTx snapshots the state and restores it when fn fails, mirroring the
// rollback of a real transaction.
type FakeStore struct {
	mu           sync.Mutex
	Reservations map[uuid.UUID]*domain.Reservation
	allocations  map[allocKey]uuid.UUID
	Outbox       []ports.OutboxRecord

	TxErr         error // returned by WithTx before running fn
	SetSessionErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		Reservations: make(map[uuid.UUID]*domain.Reservation),
		allocations:  make(map[allocKey]uuid.UUID),
	}
}

func (s *FakeStore) WithTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.TxErr != nil {
		return s.TxErr
	}

	snapRes := make(map[uuid.UUID]*domain.Reservation, len(s.Reservations))
	for k, v := range s.Reservations {
		cp := *v
		cp.Seats = append([]domain.Seat(nil), v.Seats...)
		snapRes[k] = &cp
	}
	snapAlloc := make(map[allocKey]uuid.UUID, len(s.allocations))
	for k, v := range s.allocations {
		snapAlloc[k] = v
	}
	snapOutbox := len(s.Outbox)

	if err := fn(&fakeTx{store: s}); err != nil {
		s.Reservations = snapRes
		s.allocations = snapAlloc
		s.Outbox = s.Outbox[:snapOutbox]
		return err
	}
	return nil
}

type fakeTx struct {
	store *FakeStore
}

func (t *fakeTx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	for _, seat := range r.Seats {
		key := allocKey{ShowtimeID: r.ShowtimeID, Row: seat.Row, Number: seat.Number}
		if _, taken := t.store.allocations[key]; taken {
			return errors.Wrapf(domain.ErrConflict, "seat %s is already reserved for this showtime", seat.Label())
		}
	}
	for _, seat := range r.Seats {
		t.store.allocations[allocKey{ShowtimeID: r.ShowtimeID, Row: seat.Row, Number: seat.Number}] = r.ID
	}
	cp := *r
	cp.Seats = append([]domain.Seat(nil), r.Seats...)
	t.store.Reservations[r.ID] = &cp
	return nil
}

func (t *fakeTx) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	r, ok := t.store.Reservations[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	cp := *r
	cp.Seats = append([]domain.Seat(nil), r.Seats...)
	return &cp, nil
}

func (t *fakeTx) DeleteSeatAllocations(ctx context.Context, reservationID uuid.UUID) error {
	for k, v := range t.store.allocations {
		if v == reservationID {
			delete(t.store.allocations, k)
		}
	}
	return nil
}

func (t *fakeTx) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus, chargeID *string) error {
	r, ok := t.store.Reservations[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	r.Status = status
	if chargeID != nil {
		r.ChargeID = chargeID
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *fakeTx) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	if err := t.DeleteSeatAllocations(ctx, id); err != nil {
		return err
	}
	delete(t.store.Reservations, id)
	return nil
}

func (t *fakeTx) InsertOutbox(ctx context.Context, rec ports.OutboxRecord) error {
	t.store.Outbox = append(t.store.Outbox, rec)
	return nil
}

func (s *FakeStore) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Reservations[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	cp := *r
	cp.Seats = append([]domain.Seat(nil), r.Seats...)
	return &cp, nil
}

func (s *FakeStore) ListUserReservations(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, r := range s.Reservations {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *FakeStore) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, r := range s.Reservations {
		out = append(out, *r)
	}
	return out, nil
}

func (s *FakeStore) OccupiedSeats(ctx context.Context, showtimeID int64) ([]domain.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Seat
	for k := range s.allocations {
		if k.ShowtimeID == showtimeID {
			out = append(out, domain.Seat{Row: k.Row, Number: k.Number})
		}
	}
	return out, nil
}

func (s *FakeStore) SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID, sessionURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetSessionErr != nil {
		return s.SetSessionErr
	}
	r, ok := s.Reservations[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	r.SessionID = sessionID
	r.SessionURL = sessionURL
	return nil
}

func (s *FakeStore) ExpiredPending(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for _, r := range s.Reservations {
		if r.Status == domain.StatusPending && !r.ExpiresAt.After(now) {
			out = append(out, r.ID)
		}
	}
	return out, nil
}

func (s *FakeStore) Revenue(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, r := range s.Reservations {
		if r.Status == domain.StatusCompleted {
			total += r.TotalPrice
		}
	}
	return total, nil
}

// HoldsSeat reports whether any allocation covers the coordinate.
func (s *FakeStore) HoldsSeat(showtimeID int64, seat domain.Seat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.allocations[allocKey{ShowtimeID: showtimeID, Row: seat.Row, Number: seat.Number}]
	return ok
}

// FakeCatalog serves showtimes and users from maps.
type FakeCatalog struct {
	Showtimes map[int64]*domain.Showtime
	Users     map[uuid.UUID]bool
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Showtimes: make(map[int64]*domain.Showtime),
		Users:     make(map[uuid.UUID]bool),
	}
}

func (c *FakeCatalog) GetShowtime(ctx context.Context, id int64) (*domain.Showtime, error) {
	s, ok := c.Showtimes[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "showtime %d", id)
	}
	cp := *s
	return &cp, nil
}

func (c *FakeCatalog) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return c.Users[id], nil
}

// FakeGateway records calls and returns injected errors.
type FakeGateway struct {
	CreateErr  error
	ExpireErr  error
	RefundErr  error
	ChargeErr  error
	WebhookErr error

	CreatedSessions []ports.CheckoutParams
	ExpiredSessions []string
	Refunded        []string
	Charge          string
	WebhookEvent    *ports.GatewayEvent
}

func (g *FakeGateway) CreateCheckoutSession(ctx context.Context, p ports.CheckoutParams) (*ports.CheckoutSession, error) {
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.CreatedSessions = append(g.CreatedSessions, p)
	return &ports.CheckoutSession{
		ID:  "cs_test_" + p.ReservationID.String(),
		URL: "https://checkout.example.com/" + p.ReservationID.String(),
	}, nil
}

func (g *FakeGateway) ExpireSession(ctx context.Context, sessionID string) error {
	if g.ExpireErr != nil {
		return g.ExpireErr
	}
	g.ExpiredSessions = append(g.ExpiredSessions, sessionID)
	return nil
}

func (g *FakeGateway) Refund(ctx context.Context, chargeID string) error {
	if g.RefundErr != nil {
		return g.RefundErr
	}
	g.Refunded = append(g.Refunded, chargeID)
	return nil
}

func (g *FakeGateway) ChargeID(ctx context.Context, paymentIntentID string) (string, error) {
	if g.ChargeErr != nil {
		return "", g.ChargeErr
	}
	if g.Charge == "" {
		return "ch_test", nil
	}
	return g.Charge, nil
}

func (g *FakeGateway) ParseWebhook(payload []byte, signatureHeader string) (*ports.GatewayEvent, error) {
	if g.WebhookErr != nil {
		return nil, g.WebhookErr
	}
	if g.WebhookEvent == nil {
		return nil, errors.Wrap(domain.ErrValidation, "no webhook event staged")
	}
	return g.WebhookEvent, nil
}

// FakeCache is a map-backed seat-map cache that counts invalidations.
type FakeCache struct {
	mu            sync.Mutex
	maps          map[int64]*domain.SeatMap
	Invalidations int
}

func NewFakeCache() *FakeCache {
	return &FakeCache{maps: make(map[int64]*domain.SeatMap)}
}

func (c *FakeCache) Get(ctx context.Context, showtimeID int64) (*domain.SeatMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maps[showtimeID], nil
}

func (c *FakeCache) Set(ctx context.Context, m *domain.SeatMap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maps[m.ShowtimeID] = m
	return nil
}

func (c *FakeCache) Invalidate(ctx context.Context, showtimeID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.maps, showtimeID)
	c.Invalidations++
	return nil
}

// FakeAudit collects transition records.
type FakeAudit struct {
	mu      sync.Mutex
	Records []AuditRecord
}

type AuditRecord struct {
	ReservationID uuid.UUID
	From, To      domain.ReservationStatus
	Actor         string
}

func (a *FakeAudit) LogTransition(ctx context.Context, reservationID uuid.UUID, from, to domain.ReservationStatus, actor string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Records = append(a.Records, AuditRecord{ReservationID: reservationID, From: from, To: to, Actor: actor})
	return nil
}

func (a *FakeAudit) Transitions(ctx context.Context, reservationID uuid.UUID) ([]domain.Transition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.Transition
	for _, rec := range a.Records {
		if rec.ReservationID == reservationID {
			out = append(out, domain.Transition{
				ReservationID: rec.ReservationID,
				From:          rec.From,
				To:            rec.To,
				Actor:         rec.Actor,
			})
		}
	}
	return out, nil
}

// FakeDeduper remembers event ids in a map.
type FakeDeduper struct {
	mu      sync.Mutex
	seen    map[string]bool
	Err     error
	MarkErr error
}

func NewFakeDeduper() *FakeDeduper {
	return &FakeDeduper{seen: make(map[string]bool)}
}

func (d *FakeDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return false, d.Err
	}
	return d.seen[eventID], nil
}

func (d *FakeDeduper) MarkSeen(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.MarkErr != nil {
		return d.MarkErr
	}
	d.seen[eventID] = true
	return nil
}
