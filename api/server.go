/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router for the ops surface. This engine has no
  user-facing HTTP API; these endpoints exist for operators and the
  admin backend: run history, manual triggers, queue health.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Admin frontend access

SECURITY NOTE:
  Authentication is the hosting platform's concern; these routes are
  expected to sit behind the internal gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the ops router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.ListJobs)
			r.Post("/{name}/run", h.RunJob)
		})

		r.Get("/runs", h.ListRuns)

		r.Route("/loans", func(r chi.Router) {
			r.Get("/{id}", h.GetLoan)
		})

		r.Get("/notifications/stats", h.QueueStats)
	})

	return r
}
