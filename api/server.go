/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, attached to log lines
  2. Logger:     Request logging through logrus
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/health                 Liveness and store ping
  /api/cycle/*                Cycle start and reset
  /api/reports/{type}         Daily report uploads
  /api/status/{type}/*        Views, summaries and exports
  /api/equipment/{id}/*       Single completion lookups
  /api/last-update            Last-update marker
  /api/admin/reset            Wipe every table (dev only)

SECURITY NOTE:
  No authentication middleware. Deploy behind an authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/maintenance-types", h.ListMaintenanceTypes)

		r.Route("/cycle", func(r chi.Router) {
			r.Post("/", h.StartCycle)
			r.Post("/reset", h.ResetCycle)
		})

		r.Post("/reports/{type}", h.RecordDaily)

		r.Route("/status/{type}", func(r chi.Router) {
			r.Get("/", h.GetSummary)
			r.Get("/breakdown", h.GetBreakdown)
			r.Get("/rows", h.ListRows)
			r.Get("/export", h.ExportStatus)
			r.Get("/events", h.ListEvents)
		})

		r.Get("/equipment/{id}/completion", h.GetCompletion)

		r.Get("/last-update", h.GetLastUpdate)
		r.Post("/last-update", h.TouchLastUpdate)

		r.Post("/admin/reset", h.ResetDatabase)
	})

	return r
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			}).Info("request")
		})
	}
}
