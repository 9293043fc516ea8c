package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/handlers"
	"github.com/lumenclass/authcore/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	sessionsHandler *handlers.SessionsHandler,
	devicesHandler *handlers.DevicesHandler,
	notificationsHandler *handlers.NotificationsHandler,
	totpHandler *handlers.TOTPHandler,
	tokenManager *auth.TokenManager,
	sessionChecker auth.SessionChecker,
) {
	// Coarse per-IP perimeter on the unauthenticated endpoints; the
	// per-account sliding window inside the login flow does the real work
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/2fa/verify", authHandler.VerifyTwoFactor)
		r.Post("/auth/2fa/resend", authHandler.ResendCode)
		r.Post("/auth/refresh", authHandler.RefreshToken)
	})

	// Protected routes - a validly signed access token is not enough, the
	// referenced session row must still be active
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, sessionChecker))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)

		r.Post("/auth/totp/enroll", totpHandler.Enroll)
		r.Post("/auth/totp/activate", totpHandler.Activate)

		r.Get("/sessions", sessionsHandler.List)
		r.Delete("/sessions", sessionsHandler.RevokeAll)
		r.Delete("/sessions/{id}", sessionsHandler.Revoke)

		r.Get("/devices", devicesHandler.List)
		r.Post("/devices/{id}/trust", devicesHandler.Trust)
		r.Delete("/devices/{id}", devicesHandler.Revoke)

		r.Get("/notifications", notificationsHandler.List)
		r.Post("/notifications/{id}/read", notificationsHandler.MarkRead)
	})
}
