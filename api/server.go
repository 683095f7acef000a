/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the board frontend

ROUTE GROUPS:
  /api/cards/*      Card catalog and per-card billing operations
  /api/analytics/*  Board-wide rollup and CSV export
  /metrics          Prometheus metrics
  /healthz          Liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/billingd: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Post("/", h.CreateCard)
			r.Get("/{id}", h.GetCard)
			r.Put("/{id}/labels", h.SetLabels)

			r.Get("/{id}/record", h.GetRecord)
			r.Get("/{id}/summary", h.GetSummary)
			r.Get("/{id}/badge", h.GetBadge)

			r.Post("/{id}/charges", h.AddCharge)
			r.Delete("/{id}/charges/{entryID}", h.DeleteCharge)
			r.Post("/{id}/payments", h.AddPayment)
			r.Delete("/{id}/payments/{entryID}", h.DeletePayment)

			r.Post("/{id}/reconcile", h.Reconcile)
			r.Post("/{id}/sync", h.SyncHours)
			r.Post("/{id}/hourly-charge", h.ApplyHourlyCharge)
			r.Put("/{id}/rate", h.SetHourlyRate)
			r.Post("/{id}/provision", h.ProvisionTracking)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/", h.GetAnalytics)
			r.Get("/export", h.ExportCSV)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
