/**
 * @description
 * This file sets up the HTTP router for the charge-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * standard middleware stack.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ChargeRoutes creates and returns the router for the charge service.
func ChargeRoutes(h *ChargeHandlers) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthHandler)
	r.Get("/health/db", h.DBHealthHandler)

	r.Route("/charges", func(r chi.Router) {
		r.Post("/", h.SubmitChargeHandler)
		r.Get("/", h.ListChargesHandler)
		r.Get("/{id}", h.GetChargeHandler)
		r.Get("/{id}/events", h.ListChargeEventsHandler)
		r.Get("/{id}/jobs", h.ListChargeJobsHandler)
	})

	return r
}
