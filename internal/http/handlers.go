package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/robertarktes/cinema-booking/internal/booking"
	"github.com/robertarktes/cinema-booking/internal/config"
	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/lifecycle"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/ports"
)

type Handlers struct {
	cfg       *config.Config
	booking   *booking.Service
	lifecycle *lifecycle.Service
	gateway   ports.PaymentGateway
	deduper   ports.EventDeduper
	logger    observability.Logger
}

func NewHandlers(cfg *config.Config, bookingSvc *booking.Service, lifecycleSvc *lifecycle.Service, gateway ports.PaymentGateway, deduper ports.EventDeduper, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:       cfg,
		booking:   bookingSvc,
		lifecycle: lifecycleSvc,
		gateway:   gateway,
		deduper:   deduper,
		logger:    logger,
	}
}

// log returns the request-scoped logger stored by LoggerMiddleware, so
// error logs carry the request id.
func (h *Handlers) log(r *http.Request) observability.Logger {
	return requestLogger(r.Context(), h.logger)
}

type seatRequest struct {
	RowNumber  int `json:"row_number"`
	SeatNumber int `json:"seat_number"`
}

type createReservationRequest struct {
	UserID     uuid.UUID     `json:"user_id"`
	ShowtimeID int64         `json:"showtime_id"`
	Seats      []seatRequest `json:"seats"`
}

type reservationResponse struct {
	ReservationID uuid.UUID                `json:"reservation_id"`
	UserID        uuid.UUID                `json:"user_id"`
	ShowtimeID    int64                    `json:"showtime_id"`
	Status        domain.ReservationStatus `json:"status"`
	Seats         []domain.Seat            `json:"seats"`
	TotalPrice    float64                  `json:"total_price"`
	SessionURL    string                   `json:"session_url,omitempty"`
}

func toResponse(r *domain.Reservation) reservationResponse {
	return reservationResponse{
		ReservationID: r.ID,
		UserID:        r.UserID,
		ShowtimeID:    r.ShowtimeID,
		Status:        r.Status,
		Seats:         r.Seats,
		TotalPrice:    r.TotalPrice,
		SessionURL:    r.SessionURL,
	}
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}
	if req.UserID == uuid.Nil {
		writeJSONError(w, http.StatusBadRequest, "validation", "user_id is required")
		return
	}

	seats := make([]domain.Seat, len(req.Seats))
	for i, s := range req.Seats {
		seats[i] = domain.Seat{Row: s.RowNumber, Number: s.SeatNumber}
	}

	res, err := h.booking.CreateReservation(r.Context(), req.UserID, req.ShowtimeID, seats)
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(res))
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	res, err := h.booking.GetReservation(r.Context(), id)
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation", "user_id query parameter is required")
		return
	}
	list, err := h.booking.ListUserReservations(r.Context(), userID)
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	out := make([]reservationResponse, len(list))
	for i := range list {
		out[i] = toResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation", "user_id query parameter is required")
		return
	}
	if err := h.lifecycle.Cancel(r.Context(), userID, id); err != nil {
		writeError(w, h.log(r), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RefundReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		writeJSONError(w, http.StatusBadRequest, "validation", "user_id is required")
		return
	}
	if err := h.lifecycle.Refund(r.Context(), req.UserID, id); err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusRefunded)})
}

func (h *Handlers) GetSeatMap(w http.ResponseWriter, r *http.Request) {
	showtimeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation", "invalid showtime id")
		return
	}
	m, err := h.booking.GetSeatMap(r.Context(), showtimeID)
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) AdminListReservations(w http.ResponseWriter, r *http.Request) {
	list, err := h.booking.ListReservations(r.Context())
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	out := make([]reservationResponse, len(list))
	for i := range list {
		out[i] = toResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) AdminUpdateReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status domain.ReservationStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}
	if err := h.lifecycle.SetStatus(r.Context(), id, req.Status); err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (h *Handlers) AdminReservationAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	trail, err := h.lifecycle.History(r.Context(), id)
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	if trail == nil {
		trail = []domain.Transition{}
	}
	writeJSON(w, http.StatusOK, trail)
}

func (h *Handlers) AdminRevenue(w http.ResponseWriter, r *http.Request) {
	total, err := h.booking.Revenue(r.Context())
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"total_revenue": total})
}

// StripeWebhook verifies, dedupes and dispatches gateway events. Malformed
// events are acknowledged so the gateway stops redelivering them; transient
// failures get a non-2xx so it retries.
func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation", "failed to read request body")
		return
	}

	ev, err := h.gateway.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		observability.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		writeError(w, h.log(r), err)
		return
	}

	log := h.log(r).WithField("event_id", ev.ID).WithField("event_type", ev.Type)

	if !ev.Known {
		observability.WebhookEvents.WithLabelValues(ev.Type, "ignored").Inc()
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if ev.ReservationID == uuid.Nil {
		observability.WebhookEvents.WithLabelValues(ev.Type, "malformed").Inc()
		log.Error("event metadata missing reservation_id")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if seen, err := h.deduper.Seen(r.Context(), ev.ID); err != nil {
		log.WithError(err).Warn("event dedupe check failed")
	} else if seen {
		observability.WebhookEvents.WithLabelValues(ev.Type, "duplicate").Inc()
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if err := h.lifecycle.HandleGatewayEvent(r.Context(), ev); err != nil {
		if errorIsPermanent(err) {
			// Out-of-order or stale delivery; retrying cannot fix it.
			observability.WebhookEvents.WithLabelValues(ev.Type, "stale").Inc()
			log.WithError(err).Warn("event not applicable to current reservation state")
			h.markSeen(r.Context(), log, ev.ID)
			writeJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		// Not marked seen: the non-2xx makes the gateway redeliver, and
		// the retry must not dedupe away.
		observability.WebhookEvents.WithLabelValues(ev.Type, "error").Inc()
		writeError(w, log, err)
		return
	}

	h.markSeen(r.Context(), log, ev.ID)
	observability.WebhookEvents.WithLabelValues(ev.Type, "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// markSeen is fail-open: a missed mark means one redundant redelivery
// lands on the lifecycle controller's idempotency guards.
func (h *Handlers) markSeen(ctx context.Context, log observability.Logger, eventID string) {
	if err := h.deduper.MarkSeen(ctx, eventID); err != nil {
		log.WithError(err).Warn("failed to record event id for dedupe")
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation", "invalid reservation id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
