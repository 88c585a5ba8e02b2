package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// LoginRequest opens a session. Operator is informational only.
type LoginRequest struct {
	Operator string `json:"operator"`
}

// LoginResponse carries the bearer token for later requests.
type LoginResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	Operator  string    `json:"operator"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/session
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.writeError(w, r, ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}

	token, st, err := h.sessions.Login(req.Operator)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, LoginResponse{
		Token:     token,
		SessionID: st.ID,
		Operator:  st.Operator,
		ExpiresAt: st.ExpiresAt,
	})
}

// Logout handles DELETE /api/session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Logout(st.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession dispatches /api/session by method. Only logout needs a session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Login(w, r)
	case http.MethodDelete:
		h.sessions.Middleware(http.HandlerFunc(h.Logout)).ServeHTTP(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
