package api

import (
	"net/http"

	"github.com/civiceye/civiceye/internal/session"
)

// SetupRoutes configures all API routes. Everything except session creation
// requires a bearer session token.
func SetupRoutes(mux *http.ServeMux, h *Handler, sessions *session.Manager) {
	authed := func(fn http.HandlerFunc) http.Handler {
		return withCORS(sessions.Middleware(fn))
	}

	// Session (login is public, logout checks the token itself)
	mux.Handle("/api/session", withCORS(http.HandlerFunc(h.HandleSession)))

	// Citizen intake
	mux.Handle("/api/intake", authed(h.GetIntakeHandler))
	mux.Handle("/api/intake/image", authed(h.HandleImage))
	mux.Handle("/api/intake/location", authed(h.HandleLocation))
	mux.Handle("/api/intake/location/retry", authed(h.RetryLocationHandler))
	mux.Handle("/api/intake/analyze", authed(h.AnalyzeHandler))
	mux.Handle("/api/intake/discard", authed(h.DiscardHandler))
	mux.Handle("/api/intake/submit", authed(h.SubmitHandler))

	// Reports
	mux.Handle("/api/reports", authed(h.GetReportsHandler))
	mux.Handle("/api/reports/", authed(h.HandleReportByID))
	mux.Handle("/api/stats", authed(h.GetStatsHandler))

	// Authority review
	mux.Handle("/api/review", authed(h.GetReviewHandler))
	mux.Handle("/api/review/select", authed(h.HandleSelect))
	mux.Handle("/api/review/action", authed(h.ActionHandler))
}

// withCORS sets permissive CORS headers and answers preflight requests
// before any auth checks.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
