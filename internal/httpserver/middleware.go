package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"lv-tradecore/internal/httputil"
)

type ctxKey struct{}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithAuth resolves the trading account from the bearer token and stores it
// on the request context.
func WithAuth(p *TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "missing bearer token"})
				return
			}
			accountID, err := p.ParseToken(raw)
			if err != nil {
				httpLog.WithError(err).Debug("rejected token")
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, accountID)))
		})
	}
}

func AccountID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(ctxKey{}).(string)
	return id, ok && id != ""
}

func secureTokenEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// InternalAuth guards the feed and bridge callbacks. An unset token closes
// the internal API entirely.
func InternalAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "internal token is not configured"})
				return
			}
			if !secureTokenEqual(strings.TrimSpace(r.Header.Get("X-Internal-Token")), token) {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
