/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dispatch frontend

ROUTE GROUPS:
  /api/companies/*       Payment configuration and periods per company
  /api/elements          Financial element creation
  /api/periods/*         Period lifecycle, payroll, close/lock
  /api/payouts/*         Batch mark-paid
  /api/reassignments     Element moves between periods
  /api/scenarios/*       Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Company routes
		r.Route("/companies", func(r chi.Router) {
			r.Post("/", h.CreateCompany)
			r.Get("/{id}", h.GetCompany)
			r.Get("/{id}/periods", h.ListPeriods)
			r.Get("/{id}/periods/preview", h.PreviewPeriods)
			r.Post("/{id}/periods/ensure", h.EnsurePeriod)
		})

		// Element routes
		r.Post("/elements", h.CreateElement)

		// Period lifecycle routes
		r.Route("/periods", func(r chi.Router) {
			r.Get("/{id}", h.GetPeriod)
			r.Get("/{id}/can-close", h.CanClose)
			r.Post("/{id}/close", h.ClosePeriod)
			r.Post("/{id}/lock", h.LockPeriod)
			r.Get("/{id}/payroll", h.ListPayroll)
			r.Get("/{id}/elements", h.ListElements)
		})

		// Payout routes
		r.Post("/payouts/mark-paid", h.MarkPaid)

		// Reassignment routes
		r.Post("/reassignments", h.Reassign)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
