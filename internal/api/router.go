/**
 * @description
 * This file sets up the HTTP router for the subscription-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, and authentication, and maps the routes to their
 * corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the subscription-service routes.
func NewRouter(h *Handler, jwksURL string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Subscription service is healthy"))
	})

	// Protected routes that require authentication
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Get("/status", h.handleGetStatus)
		r.Post("/initialize", h.handleInitialize)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/purchase", h.handlePurchase)
		r.Post("/restore", h.handleRestore)
		r.Post("/identify", h.handleIdentify)
		r.Post("/logout", h.handleLogout)
		r.Post("/usage/increment", h.handleUsageIncrement)
		r.Get("/offerings", h.handleGetOfferings)
		r.Post("/paywall/present", h.handlePresentPaywall)
		r.Post("/reset", h.handleReset)
	})

	return r
}
