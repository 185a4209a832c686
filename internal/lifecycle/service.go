// Package lifecycle is the state machine driving a reservation from
// PENDING to its terminal status. Every transition runs inside one store
// transaction: status change, seat release and outbox record commit
// together or not at all. Handlers are idempotent; a redelivered event
// that finds the reservation already in the target state is a no-op.
package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/ports"
)

type Service struct {
	store        ports.Store
	catalog      ports.Catalog
	gateway      ports.PaymentGateway
	cache        ports.SeatMapCache
	audit        ports.Audit
	logger       observability.Logger
	refundCutoff time.Duration
	now          func() time.Time
}

func NewService(store ports.Store, catalog ports.Catalog, gateway ports.PaymentGateway, cache ports.SeatMapCache, audit ports.Audit, logger observability.Logger, refundCutoff time.Duration) *Service {
	return &Service{
		store:        store,
		catalog:      catalog,
		gateway:      gateway,
		cache:        cache,
		audit:        audit,
		logger:       logger,
		refundCutoff: refundCutoff,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Confirm records a successful payment: PENDING -> COMPLETED. The charge
// id may be nil when its retrieval failed; confirmation proceeds anyway.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, chargeID *string) error {
	var from domain.ReservationStatus
	var showtimeID int64
	noop := false

	err := s.store.WithTx(ctx, func(tx ports.Tx) error {
		res, err := tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from, showtimeID = res.Status, res.ShowtimeID

		if res.Status == domain.StatusCompleted {
			noop = true
			return nil
		}
		if res.Status != domain.StatusPending {
			return errors.Wrapf(domain.ErrBadRequest, "cannot complete reservation in status %s", res.Status)
		}
		if err := tx.UpdateStatus(ctx, id, domain.StatusCompleted, chargeID); err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, transitionRecord(id, "reservation.completed", domain.StatusCompleted))
	})
	if err != nil || noop {
		return err
	}

	s.finishTransition(ctx, id, from, domain.StatusCompleted, "webhook", showtimeID, false)
	return nil
}

// Expire handles a lapsed checkout session: PENDING -> EXPIRED, seats
// released. actor distinguishes the webhook path from the sweep worker.
func (s *Service) Expire(ctx context.Context, id uuid.UUID, actor string) error {
	var from domain.ReservationStatus
	var showtimeID int64
	noop := false

	err := s.store.WithTx(ctx, func(tx ports.Tx) error {
		res, err := tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from, showtimeID = res.Status, res.ShowtimeID

		if res.Status == domain.StatusExpired {
			noop = true
			return nil
		}
		if res.Status != domain.StatusPending {
			return errors.Wrapf(domain.ErrBadRequest, "cannot expire reservation in status %s", res.Status)
		}
		if err := tx.DeleteSeatAllocations(ctx, id); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, domain.StatusExpired, nil); err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, transitionRecord(id, "reservation.expired", domain.StatusExpired))
	})
	if err != nil || noop {
		return err
	}

	s.finishTransition(ctx, id, from, domain.StatusExpired, actor, showtimeID, true)
	return nil
}

// Cancel is the user-initiated abort of a PENDING reservation. The
// checkout session is expired at the gateway inside the same all-or-
// nothing scope, so a gateway failure leaves the reservation untouched.
func (s *Service) Cancel(ctx context.Context, userID, id uuid.UUID) error {
	var from domain.ReservationStatus
	var showtimeID int64
	noop := false

	err := s.store.WithTx(ctx, func(tx ports.Tx) error {
		res, err := tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from, showtimeID = res.Status, res.ShowtimeID

		if !res.OwnedBy(userID) {
			return errors.Wrap(domain.ErrUnauthorized, "you are not authorized to cancel this reservation")
		}
		if res.Status == domain.StatusCancelled {
			noop = true
			return nil
		}
		if res.Status != domain.StatusPending {
			return errors.Wrapf(domain.ErrBadRequest, "cannot cancel reservation in status %s", res.Status)
		}

		if res.SessionID != "" {
			if err := s.gateway.ExpireSession(ctx, res.SessionID); err != nil {
				observability.GatewayFailures.WithLabelValues("expire_session").Inc()
				return err
			}
		}
		if err := tx.DeleteSeatAllocations(ctx, id); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, domain.StatusCancelled, nil); err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, transitionRecord(id, "reservation.cancelled", domain.StatusCancelled))
	})
	if err != nil || noop {
		return err
	}

	s.finishTransition(ctx, id, from, domain.StatusCancelled, "user", showtimeID, true)
	return nil
}

// Refund is the user-initiated refund of a COMPLETED reservation, allowed
// until refundCutoff before the showtime starts. The gateway refund and
// the state mutation succeed together or neither happens.
func (s *Service) Refund(ctx context.Context, userID, id uuid.UUID) error {
	var from domain.ReservationStatus
	var showtimeID int64
	noop := false

	err := s.store.WithTx(ctx, func(tx ports.Tx) error {
		res, err := tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from, showtimeID = res.Status, res.ShowtimeID

		if !res.OwnedBy(userID) {
			return errors.Wrap(domain.ErrUnauthorized, "you are not authorized to refund this reservation")
		}
		if res.Status == domain.StatusRefunded {
			noop = true
			return nil
		}
		if res.Status != domain.StatusCompleted {
			return errors.Wrap(domain.ErrBadRequest, "only completed reservations can be refunded")
		}

		showtime, err := s.catalog.GetShowtime(ctx, res.ShowtimeID)
		if err != nil {
			return err
		}
		if !s.now().Before(showtime.RefundDeadline(s.refundCutoff)) {
			return errors.Wrapf(domain.ErrBadRequest,
				"cannot refund less than %s before showtime", s.refundCutoff)
		}
		if res.ChargeID == nil {
			return errors.Wrap(domain.ErrBadRequest, "no charge recorded for reservation")
		}

		if err := s.gateway.Refund(ctx, *res.ChargeID); err != nil {
			observability.GatewayFailures.WithLabelValues("refund").Inc()
			return err
		}
		if err := tx.DeleteSeatAllocations(ctx, id); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, domain.StatusRefunded, nil); err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, transitionRecord(id, "reservation.refunded", domain.StatusRefunded))
	})
	if err != nil || noop {
		return err
	}

	s.finishTransition(ctx, id, from, domain.StatusRefunded, "user", showtimeID, true)
	return nil
}

// ConfirmRefund applies a refund confirmed by the gateway, e.g. one issued
// from the gateway dashboard. Seats are released if still held.
func (s *Service) ConfirmRefund(ctx context.Context, id uuid.UUID) error {
	var from domain.ReservationStatus
	var showtimeID int64
	noop := false
	released := false

	err := s.store.WithTx(ctx, func(tx ports.Tx) error {
		res, err := tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from, showtimeID = res.Status, res.ShowtimeID

		if res.Status == domain.StatusRefunded {
			noop = true
			return nil
		}
		if res.Status.HoldsSeats() {
			if err := tx.DeleteSeatAllocations(ctx, id); err != nil {
				return err
			}
			released = true
		}
		if err := tx.UpdateStatus(ctx, id, domain.StatusRefunded, nil); err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, transitionRecord(id, "reservation.refunded", domain.StatusRefunded))
	})
	if err != nil || noop {
		return err
	}

	s.finishTransition(ctx, id, from, domain.StatusRefunded, "webhook", showtimeID, released)
	return nil
}

// SetStatus is the admin override. Forcing a reservation back into a
// seat-holding status is rejected: its allocations were already released
// and silently re-claiming them could double-book.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus) error {
	if !status.Valid() {
		return errors.Wrapf(domain.ErrValidation, "unknown status %q", status)
	}

	var from domain.ReservationStatus
	var showtimeID int64
	noop := false
	released := false

	err := s.store.WithTx(ctx, func(tx ports.Tx) error {
		res, err := tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from, showtimeID = res.Status, res.ShowtimeID

		if res.Status == status {
			noop = true
			return nil
		}
		if status.HoldsSeats() && !res.Status.HoldsSeats() {
			return errors.Wrapf(domain.ErrBadRequest,
				"cannot move reservation from %s to %s: seats were already released", res.Status, status)
		}
		if !status.HoldsSeats() && res.Status.HoldsSeats() {
			if err := tx.DeleteSeatAllocations(ctx, id); err != nil {
				return err
			}
			released = true
		}
		if err := tx.UpdateStatus(ctx, id, status, nil); err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, transitionRecord(id, "reservation."+statusEventSuffix(status), status))
	})
	if err != nil || noop {
		return err
	}

	s.finishTransition(ctx, id, from, status, "admin", showtimeID, released)
	return nil
}

// HandleGatewayEvent maps one verified webhook event to its guarded
// transition. Unknown event types are acknowledged without acting.
func (s *Service) HandleGatewayEvent(ctx context.Context, ev *ports.GatewayEvent) error {
	if !ev.Known {
		return nil
	}
	switch ev.Type {
	case ports.EventCheckoutCompleted:
		var chargeID *string
		if ev.PaymentIntentID == "" {
			s.logger.WithField("reservation_id", ev.ReservationID).Warn("completed event without payment intent")
		} else if cid, err := s.gateway.ChargeID(ctx, ev.PaymentIntentID); err != nil {
			// Non-fatal: confirm without a charge id rather than hold
			// the customer's seats hostage to a lookup failure.
			observability.GatewayFailures.WithLabelValues("charge_lookup").Inc()
			s.logger.WithError(err).WithField("reservation_id", ev.ReservationID).Warn("charge id lookup failed")
		} else {
			chargeID = &cid
		}
		return s.Confirm(ctx, ev.ReservationID, chargeID)
	case ports.EventCheckoutExpired:
		return s.Expire(ctx, ev.ReservationID, "webhook")
	case ports.EventChargeRefunded:
		return s.ConfirmRefund(ctx, ev.ReservationID)
	}
	return nil
}

// History returns the recorded transition trail for a reservation. The
// reservation is looked up first so an unknown id is a 404 rather than
// an empty trail.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]domain.Transition, error) {
	if _, err := s.store.GetReservation(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.Transitions(ctx, id)
}

func (s *Service) finishTransition(ctx context.Context, id uuid.UUID, from, to domain.ReservationStatus, actor string, showtimeID int64, releasedSeats bool) {
	observability.Transitions.WithLabelValues(string(to)).Inc()
	if releasedSeats {
		if err := s.cache.Invalidate(ctx, showtimeID); err != nil {
			s.logger.WithError(err).Warn("seat map cache invalidation failed")
		}
	}
	if err := s.audit.LogTransition(ctx, id, from, to, actor); err != nil {
		s.logger.WithError(err).WithField("reservation_id", id).Warn("audit write failed")
	}
}

func transitionRecord(id uuid.UUID, eventType string, to domain.ReservationStatus) ports.OutboxRecord {
	payload, _ := json.Marshal(map[string]interface{}{
		"reservation_id": id,
		"status":         to,
	})
	return ports.NewOutboxRecord(id, eventType, payload)
}

func statusEventSuffix(status domain.ReservationStatus) string {
	switch status {
	case domain.StatusPending:
		return "pending"
	case domain.StatusCompleted:
		return "completed"
	case domain.StatusCancelled:
		return "cancelled"
	case domain.StatusExpired:
		return "expired"
	default:
		return "refunded"
	}
}
