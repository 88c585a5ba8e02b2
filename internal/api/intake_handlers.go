package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/civiceye/civiceye/internal/intake"
	"github.com/civiceye/civiceye/internal/models"
)

// multipartOverhead is added to the body limit for form boundaries and headers.
const multipartOverhead = 64 << 10

// AnalyzeResponse is returned by a successful analysis.
type AnalyzeResponse struct {
	Analysis models.AnalysisResult `json:"analysis"`
	State    intake.State          `json:"state"`
}

// GetIntakeHandler handles GET /api/intake
func (h *Handler) GetIntakeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, st.Form.State())
}

// HandleImage handles POST and DELETE /api/intake/image
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		data, err := h.readImage(w, r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		state, err := st.Form.Upload(data)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, state)
	case http.MethodDelete:
		h.writeJSON(w, http.StatusOK, st.Form.RemoveImage())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// readImage accepts a multipart field named "image" or a raw image body.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return nil, uploadError(err)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, ValidationError{Field: "image", Message: "multipart field \"image\" is required"}
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, uploadError(err)
	}
	if len(data) == 0 {
		return nil, ValidationError{Field: "image", Message: "image is empty"}
	}
	return data, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: request body over %d bytes", intake.ErrImageTooLarge, tooLarge.Limit)
	}
	return ValidationError{Field: "image", Message: err.Error()}
}

// HandleLocation handles POST /api/intake/location
func (h *Handler) HandleLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	fix, err := ValidateLocationRequest(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if req.Denied {
		err = st.Form.DenyDeviceLocation()
	} else {
		err = st.Form.ReportDeviceFix(fix)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, st.Form.State())
}

// RetryLocationHandler handles POST /api/intake/location/retry
func (h *Handler) RetryLocationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	if err := st.Form.RetryLocation(); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, st.Form.State())
}

// AnalyzeHandler handles POST /api/intake/analyze
func (h *Handler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	result, err := st.Form.Analyze(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AnalyzeResponse{Analysis: result, State: st.Form.State()})
}

// DiscardHandler handles POST /api/intake/discard
func (h *Handler) DiscardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, st.Form.Discard())
}

// SubmitHandler handles POST /api/intake/submit
func (h *Handler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	rep, err := st.Form.Submit()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rep)
}
