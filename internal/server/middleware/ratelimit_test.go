package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// captureLimiter records what the middleware asked for and answers from
// canned results.
type captureLimiter struct {
	allow   bool
	err     error
	lastKey string
	lastCtx context.Context
}

func (l *captureLimiter) Allow(ctx context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.lastCtx = ctx
	l.lastKey = key
	return l.allow, l.err
}

func (l *captureLimiter) Wait(context.Context, string) error { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type ctxMarker struct{}

func TestRateLimitUsesRequestContextAndClientKey(t *testing.T) {
	limiter := &captureLimiter{allow: true}
	h := RateLimit(limiter, 10, time.Second)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.RemoteAddr = "203.0.113.9:4411"
	req = req.WithContext(context.WithValue(req.Context(), ctxMarker{}, "here"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if limiter.lastKey != "api:203.0.113.9" {
		t.Fatalf("limiter key = %q, want %q", limiter.lastKey, "api:203.0.113.9")
	}
	if limiter.lastCtx == nil || limiter.lastCtx.Value(ctxMarker{}) != "here" {
		t.Fatal("limiter did not receive the request context")
	}
}

func TestRateLimitHonoursProxyHeaders(t *testing.T) {
	limiter := &captureLimiter{allow: true}
	h := RateLimit(limiter, 10, time.Second)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if limiter.lastKey != "api:198.51.100.7" {
		t.Fatalf("limiter key = %q, want forwarded client", limiter.lastKey)
	}
}

func TestRateLimitDeniedRequestGets429(t *testing.T) {
	h := RateLimit(&captureLimiter{allow: false}, 1, time.Second)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimitFailsOpenOnBackendError(t *testing.T) {
	h := RateLimit(&captureLimiter{err: errors.New("redis down")}, 1, time.Second)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (fail open)", rec.Code, http.StatusOK)
	}
}
