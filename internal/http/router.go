package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robertarktes/cinema-booking/internal/observability"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl Limiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(rl))

			r.Post("/reservations", h.CreateReservation)
			r.Get("/reservations", h.ListReservations)
			r.Get("/reservations/{id}", h.GetReservation)
			r.Delete("/reservations/{id}", h.CancelReservation)
			r.Post("/reservations/{id}/refund", h.RefundReservation)
			r.Get("/showtimes/{id}/seat-map", h.GetSeatMap)

			r.Get("/admin/reservations", h.AdminListReservations)
			r.Patch("/admin/reservations/{id}", h.AdminUpdateReservation)
			r.Get("/admin/reservations/{id}/audit", h.AdminReservationAudit)
			r.Get("/admin/revenue", h.AdminRevenue)
		})

		// The gateway signs its own requests; rate limiting webhook
		// deliveries would only delay state transitions.
		r.Post("/payments/webhook", h.StripeWebhook)

		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
