package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avendale/tradepost/internal/domain"
)

// RateLimit returns middleware that throttles callers by client IP. Listing
// sweeps and offer floods both arrive as request bursts from a single origin,
// so a per-IP sliding window in front of the mux is enough; the engine's own
// per-asset locks handle contention past this point. The limiter namespaces
// its keys, so "api:" only has to separate HTTP traffic from relay pacing.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "api:" + extractClientIP(r)

			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				// Fail open when the limiter backend is down: a Redis
				// outage must not take trading offline with it.
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP determines the client IP, preferring proxy headers over the
// direct remote address so traders behind the ingress are limited
// individually rather than as one.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
