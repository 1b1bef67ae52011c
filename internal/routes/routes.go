package routes

import (
	"net/http"

	"github.com/BradenHooton/rampart/internal/auth"
	"github.com/BradenHooton/rampart/internal/handlers"
	"github.com/BradenHooton/rampart/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers the router serves
type Handlers struct {
	Auth     *handlers.AuthHandler
	MFA      *handlers.MFAHandler
	Comments *handlers.CommentHandler
	Activity *handlers.ActivityHandler
	Health   *handlers.HealthHandler
	// Metrics serves the Prometheus exposition; nil disables /metrics
	Metrics http.Handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	flood middleware.FloodLimitConfig,
) {
	router.Get("/health", h.Health.Health)
	if h.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	// Public routes - capped per client before the counting policies run
	router.Group(func(r chi.Router) {
		r.Use(middleware.FloodLimit(flood))
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/2fa/verify", h.Auth.VerifySecondFactor)
		r.Post("/comments", h.Comments.Submit)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		r.Post("/mfa/enroll", h.MFA.Enroll)
		r.Post("/mfa/backup-codes", h.MFA.RegenerateBackupCodes)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Get("/admin/activity", h.Activity.List)
		})
	})
}
