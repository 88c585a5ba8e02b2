package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/civiceye/civiceye/internal/models"
	"github.com/civiceye/civiceye/internal/report"
)

// ReportsResponse lists reports, most recent first.
type ReportsResponse struct {
	Reports []models.CivicReport `json:"reports"`
	Count   int                  `json:"count"`
}

// GetReportsHandler handles GET /api/reports. An optional status query
// parameter filters the list.
func (h *Handler) GetReportsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	reports := st.Store.List()
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.ReportStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			h.writeError(w, r, ValidationError{Field: "status", Message: "unknown report status"})
			return
		}
		filtered := reports[:0]
		for _, rep := range reports {
			if rep.Status == status {
				filtered = append(filtered, rep)
			}
		}
		reports = filtered
	}

	h.writeJSON(w, http.StatusOK, ReportsResponse{Reports: reports, Count: len(reports)})
}

// HandleReportByID handles GET /api/reports/:id, /api/reports/:id/export and
// /api/reports/:id/image
func (h *Handler) HandleReportByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	// /api/reports/{id}[/{view}]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[2] == "" || len(parts) > 4 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	id := parts[2]

	if len(parts) == 4 && parts[3] == "image" {
		h.serveReportImage(w, r, st.Store, id)
		return
	}

	rep, err := st.Store.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(parts) == 3 {
		h.writeJSON(w, http.StatusOK, rep)
		return
	}

	switch parts[3] {
	case "export":
		w.Header().Set("Content-Disposition", `attachment; filename="report-`+rep.ID+`.json"`)
		h.writeJSON(w, http.StatusOK, report.NewAuthorityExport(rep, h.evidenceBaseURL))
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *Handler) serveReportImage(w http.ResponseWriter, r *http.Request, store *report.Store, id string) {
	img, err := store.Image(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(img.Data) == 0 {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", img.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("ETag", `"`+img.SHA256+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		h.logger.Error("failed to write image", "report_id", id, "error", err)
	}
}
