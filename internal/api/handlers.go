package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/civiceye/civiceye/internal/classifier"
	"github.com/civiceye/civiceye/internal/intake"
	"github.com/civiceye/civiceye/internal/location"
	"github.com/civiceye/civiceye/internal/report"
	"github.com/civiceye/civiceye/internal/review"
	"github.com/civiceye/civiceye/internal/session"
	"github.com/getsentry/sentry-go"
)

// Handler serves the citizen intake and authority dashboard endpoints.
type Handler struct {
	sessions        *session.Manager
	evidenceBaseURL string
	maxUploadBytes  int64
	logger          *slog.Logger
	startTime       time.Time
}

// NewHandler creates a handler. maxUploadBytes bounds request bodies on
// image upload; the intake form enforces the exact image limit.
func NewHandler(sessions *session.Manager, evidenceBaseURL string, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = intake.DefaultMaxImageBytes
	}
	return &Handler{
		sessions:        sessions,
		evidenceBaseURL: evidenceBaseURL,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger,
		startTime:       time.Now(),
	}
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// GetStatsHandler handles GET /api/stats
func (h *Handler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, report.Summarize(st.Store.List()))
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) (*session.AppState, bool) {
	st, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "Session required", http.StatusUnauthorized)
		return nil, false
	}
	return st, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps err to a status code. Server-side failures are reported to
// the request's Sentry hub when one is attached.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, retryable := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
	}
	h.writeJSON(w, status, ErrorResponse{Error: err.Error(), Retryable: retryable})
}

func statusFor(err error) (int, bool) {
	var (
		verr ValidationError
		cerr *classifier.Error
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, false
	case errors.Is(err, intake.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, false
	case errors.Is(err, intake.ErrUnsupportedImage),
		errors.Is(err, intake.ErrNoPushLocator),
		errors.Is(err, review.ErrUnknownAction):
		return http.StatusBadRequest, false
	case errors.Is(err, report.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, intake.ErrLocationRequired):
		return http.StatusUnprocessableEntity, false
	case errors.Is(err, intake.ErrNoImage),
		errors.Is(err, intake.ErrNoAnalysis),
		errors.Is(err, intake.ErrAnalysisInFlight),
		errors.Is(err, intake.ErrSuperseded),
		errors.Is(err, location.ErrRetryNotAllowed),
		errors.Is(err, review.ErrNoSelection),
		errors.Is(err, review.ErrInvalidTransition),
		errors.Is(err, review.ErrActionInFlight):
		return http.StatusConflict, false
	case errors.As(err, &cerr),
		errors.Is(err, classifier.ErrMalformedResponse),
		errors.Is(err, review.ErrDispatchFailed):
		return http.StatusBadGateway, true
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, true
	default:
		return http.StatusInternalServerError, false
	}
}
