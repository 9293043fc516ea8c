package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
)

// RateLimitConfig holds the per-IP perimeter rate limit. This is a coarse
// outer guard; the per-account sliding window in internal/ratelimit is the
// real brute-force defense.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns the perimeter limit for unauthenticated auth
// endpoints.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 30}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteRateLimited(w, 60)
		}),
	)
}
