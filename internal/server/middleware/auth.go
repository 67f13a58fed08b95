package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/bcrypt"
)

// Principal is an authenticated caller: the admin, a sibling venue, or a
// trader, bound to the ledger address its bearer token represents.
type Principal struct {
	Name    string
	Address common.Address
}

// PrincipalEntry is one configured token binding. Exactly one of Token
// (plaintext, compared constant-time) or TokenBcrypt (bcrypt hash of the
// token) is set.
type PrincipalEntry struct {
	Name        string
	Address     common.Address
	Token       string
	TokenBcrypt string
}

// PrincipalTable resolves bearer tokens to principals.
type PrincipalTable struct {
	plain  []PrincipalEntry
	hashed []PrincipalEntry
}

// NewPrincipalTable builds a table from configured entries.
func NewPrincipalTable(entries []PrincipalEntry) *PrincipalTable {
	t := &PrincipalTable{}
	for _, e := range entries {
		if e.TokenBcrypt != "" {
			t.hashed = append(t.hashed, e)
		} else if e.Token != "" {
			t.plain = append(t.plain, e)
		}
	}
	return t
}

// Resolve maps a bearer token to its principal. Plaintext entries compare
// constant-time; hashed entries go through bcrypt. The table is small and
// read-only, so the linear scan is fine.
func (t *PrincipalTable) Resolve(token string) (Principal, bool) {
	if token == "" {
		return Principal{}, false
	}
	for _, e := range t.plain {
		if subtle.ConstantTimeCompare([]byte(token), []byte(e.Token)) == 1 {
			return Principal{Name: e.Name, Address: e.Address}, true
		}
	}
	for _, e := range t.hashed {
		if bcrypt.CompareHashAndPassword([]byte(e.TokenBcrypt), []byte(token)) == nil {
			return Principal{Name: e.Name, Address: e.Address}, true
		}
	}
	return Principal{}, false
}

type principalKey struct{}

// PrincipalFrom returns the authenticated principal attached by Auth.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal attaches a principal to the context. Exported for handler
// tests that bypass the middleware.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Auth returns middleware that resolves the request's bearer token against
// the principal table and attaches the principal to the request context. A
// request without a token passes through unauthenticated (public reads stay
// open; handlers that need a caller reject the missing principal); a request
// presenting an unknown token is rejected outright.
func Auth(table *PrincipalTable) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, ok := table.Resolve(token)
			if !ok {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
