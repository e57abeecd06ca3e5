package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/jobtrack/internal/auth"
)

// TokenResolver maps a bearer token to the principal it belongs to.
// Implemented by *auth.TokenSet.
type TokenResolver interface {
	Lookup(token string) (string, bool)
}

// BearerAuth rejects requests without a known token and stores the resolved
// principal in the request context.
func BearerAuth(tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(h, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			principal, ok := tokens.Lookup(h[len(prefix):])
			if !ok {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// principal returns the caller resolved by BearerAuth, or "" when the
// handler is mounted without it.
func principal(r *http.Request) string {
	p, _ := auth.FromContext(r.Context())
	return p
}
