package api

import (
	"encoding/json"
	"net/http"

	"github.com/civiceye/civiceye/internal/models"
	"github.com/civiceye/civiceye/internal/review"
)

// ActionResponse reports the outcome of a review action.
type ActionResponse struct {
	Report models.CivicReport `json:"report"`
	Review review.State        `json:"review"`
}

// GetReviewHandler handles GET /api/review
func (h *Handler) GetReviewHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, st.Review.State())
}

// HandleSelect handles POST and DELETE /api/review/select
func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req SelectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, ValidationError{Field: "body", Message: "invalid JSON"})
			return
		}
		id, err := ValidateSelectRequest(req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if _, err := st.Review.Select(id); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, st.Review.State())
	case http.MethodDelete:
		st.Review.Clear()
		h.writeJSON(w, http.StatusOK, st.Review.State())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ActionHandler handles POST /api/review/action
func (h *Handler) ActionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	action, err := ValidateActionRequest(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rep, err := st.Review.Apply(r.Context(), action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ActionResponse{Report: rep, Review: st.Review.State()})
}
