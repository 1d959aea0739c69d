package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/mpaterson/bulwark/internal/handlers"
	"github.com/mpaterson/bulwark/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	statsHandler *handlers.StatsHandler,
	rateLimitConfig middleware.RateLimitConfig,
) {
	// The transport-level IP limiter sheds floods before the engine's own
	// sliding-window limiter even sees them.
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/api/login", authHandler.Login)

	router.Get("/api/stats", statsHandler.GetStats)
	router.Get("/api/stats/recent", statsHandler.GetRecentAttempts)
}
