package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the identity resolved once per request. The API is machine to
// machine behind a shared secret; the workspace header scopes CRUD calls.
type Principal struct {
	UserID int64
}

// RequireToken authenticates the static bearer token and injects a Principal
// into the request context. Handlers never re-probe headers themselves.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeAuthError(w, http.StatusServiceUnavailable, "api token is not configured")
				return
			}
			if !validBearerToken(r.Header.Get("Authorization"), token) {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			principal := Principal{UserID: 1}
			if raw := strings.TrimSpace(r.Header.Get("X-Workspace-ID")); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					writeAuthError(w, http.StatusBadRequest, "invalid X-Workspace-ID")
					return
				}
				principal.UserID = id
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the principal injected by RequireToken.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func validBearerToken(headerValue, expected string) bool {
	headerValue = strings.TrimSpace(headerValue)
	const prefix = "Bearer "
	if !strings.HasPrefix(headerValue, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, prefix))
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
