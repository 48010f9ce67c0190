/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for a local frontend

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Protocol routes
		r.Route("/protocols", func(r chi.Router) {
			r.Get("/", h.ListProtocols)
			r.Post("/", h.CreateProtocol)
			r.Get("/{id}", h.GetProtocol)
			r.Put("/{id}/items", h.ReplaceItems)
			r.Post("/{id}/regenerate", h.Regenerate)
			r.Get("/{id}/calendar", h.Calendar)
			r.Get("/{id}/forecast", h.Forecast)
		})

		// Dose routes
		r.Route("/doses", func(r chi.Router) {
			r.Get("/today", h.Today)
			r.Post("/", h.LogDose)
			r.Post("/status", h.SetDoseStatus)
		})

		// Inventory routes
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", h.ListInventory)
			r.Put("/{peptideId}", h.SetInventory)
		})
	})

	return r
}
