package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/lumenclass/authcore/internal/models"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// SessionChecker confirms an access token's session is still active.
// Revocation is server-authoritative: a validly signed token is rejected the
// moment its session is deactivated.
type SessionChecker interface {
	IsSessionActive(ctx context.Context, sessionID string) (bool, error)
	TouchLastAccessed(ctx context.Context, sessionID string) error
}

// Middleware validates access tokens and injects claims into the request
// context.
func Middleware(tm *TokenManager, sessions SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateAccessToken(parts[1])
			if err != nil {
				pkghttp.WriteInvalidToken(w)
				return
			}

			active, err := sessions.IsSessionActive(r.Context(), claims.SessionID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteInvalidToken(w)
					return
				}
				pkghttp.WriteConnectionError(w)
				return
			}
			if !active {
				pkghttp.WriteInvalidToken(w)
				return
			}

			// Keeps the session list's activity ordering current. Best
			// effort; a failed touch must not fail the request.
			_ = sessions.TouchLastAccessed(r.Context(), claims.SessionID)

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext extracts validated token claims from the request
// context. Returns nil when the middleware did not run.
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
