// Package booking composes the seat inventory check, the reservation
// store and the payment gateway into the reservation creation flow, and
// serves the seat-map projection.
package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/ports"
)

type Service struct {
	store      ports.Store
	catalog    ports.Catalog
	gateway    ports.PaymentGateway
	cache      ports.SeatMapCache
	logger     observability.Logger
	sessionTTL time.Duration
}

func NewService(store ports.Store, catalog ports.Catalog, gateway ports.PaymentGateway, cache ports.SeatMapCache, logger observability.Logger, sessionTTL time.Duration) *Service {
	return &Service{
		store:      store,
		catalog:    catalog,
		gateway:    gateway,
		cache:      cache,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

// CreateReservation allocates the requested seats atomically, persists a
// PENDING reservation and opens a checkout session for it. If the session
// cannot be created or recorded the reservation is rolled back so no
// seats are stranded behind a payment that can never arrive.
func (s *Service) CreateReservation(ctx context.Context, userID uuid.UUID, showtimeID int64, seats []domain.Seat) (*domain.Reservation, error) {
	exists, err := s.catalog.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrapf(domain.ErrNotFound, "user %s", userID)
	}

	showtime, err := s.catalog.GetShowtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateSeats(showtime, seats); err != nil {
		return nil, err
	}

	res := domain.NewReservation(userID, showtime, seats, s.sessionTTL)

	err = s.store.WithTx(ctx, func(tx ports.Tx) error {
		if err := tx.InsertReservation(ctx, &res); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"reservation_id": res.ID,
			"user_id":        res.UserID,
			"showtime_id":    res.ShowtimeID,
			"total_price":    res.TotalPrice,
			"status":         res.Status,
		})
		return tx.InsertOutbox(ctx, ports.NewOutboxRecord(res.ID, "reservation.created", payload))
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			observability.SeatConflicts.Inc()
		}
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, ports.CheckoutParams{
		ReservationID: res.ID,
		UserID:        userID,
		ProductName:   showtime.MovieTitle + " Reservation",
		Description:   domain.FormatCheckoutDescription(seats, showtime.StartTime),
		UnitAmount:    int64(showtime.Price * 100),
		Quantity:      int64(len(seats)),
		ExpiresAt:     res.ExpiresAt,
	})
	if err != nil {
		observability.GatewayFailures.WithLabelValues("create_session").Inc()
		s.rollbackReservation(ctx, res.ID)
		return nil, err
	}

	if err := s.store.SetPaymentSession(ctx, res.ID, session.ID, session.URL); err != nil {
		// Without the session id on record, cancel cannot expire the
		// session and the customer could still pay for released seats.
		// Expire it now and roll the reservation back.
		s.logger.WithError(err).WithField("reservation_id", res.ID).Error("failed to persist checkout session")
		if eerr := s.gateway.ExpireSession(ctx, session.ID); eerr != nil {
			observability.GatewayFailures.WithLabelValues("expire_session").Inc()
			s.logger.WithError(eerr).WithField("session_id", session.ID).Error("failed to expire orphaned checkout session")
		}
		s.rollbackReservation(ctx, res.ID)
		return nil, err
	}
	res.SessionID = session.ID
	res.SessionURL = session.URL

	observability.ReservationsCreated.Inc()
	if err := s.cache.Invalidate(ctx, showtimeID); err != nil {
		s.logger.WithError(err).Warn("seat map cache invalidation failed")
	}
	return &res, nil
}

func (s *Service) rollbackReservation(ctx context.Context, id uuid.UUID) {
	err := s.store.WithTx(ctx, func(tx ports.Tx) error {
		return tx.DeleteReservation(ctx, id)
	})
	if err != nil {
		// Seats stay allocated until the expiry sweep picks the
		// reservation up; loud log so it does not go unnoticed.
		s.logger.WithError(err).WithField("reservation_id", id).Error("failed to roll back reservation after gateway failure")
	}
}

// GetSeatMap serves the occupancy grid for a showtime. The projection is
// derived from the same allocations the conflict check reads, so the UI
// and the booking path can never disagree.
func (s *Service) GetSeatMap(ctx context.Context, showtimeID int64) (*domain.SeatMap, error) {
	if cached, err := s.cache.Get(ctx, showtimeID); err != nil {
		s.logger.WithError(err).Warn("seat map cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	var showtime *domain.Showtime
	var occupied []domain.Seat

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		showtime, err = s.catalog.GetShowtime(gctx, showtimeID)
		return err
	})
	g.Go(func() error {
		var err error
		occupied, err = s.store.OccupiedSeats(gctx, showtimeID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := domain.BuildSeatMap(showtime, occupied)
	if err := s.cache.Set(ctx, &m); err != nil {
		s.logger.WithError(err).Warn("seat map cache write failed")
	}
	return &m, nil
}

func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

func (s *Service) ListUserReservations(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	return s.store.ListUserReservations(ctx, userID)
}

func (s *Service) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	return s.store.ListReservations(ctx)
}

func (s *Service) Revenue(ctx context.Context) (float64, error) {
	return s.store.Revenue(ctx)
}
