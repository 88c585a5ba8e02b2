package session

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const stateContextKey contextKey = "session"

// Middleware resolves the bearer token and puts the session in the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		st, err := m.Get(parts[1])
		if err != nil {
			http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithState(r.Context(), st)))
	})
}

// WithState returns a context carrying st.
func WithState(ctx context.Context, st *AppState) context.Context {
	return context.WithValue(ctx, stateContextKey, st)
}

// FromContext extracts the session placed by Middleware.
func FromContext(ctx context.Context) (*AppState, bool) {
	st, ok := ctx.Value(stateContextKey).(*AppState)
	return st, ok && st != nil
}
