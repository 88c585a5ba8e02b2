package report

import (
	"fmt"
	"strings"

	"github.com/civiceye/civiceye/internal/models"
)

// ExportTimeFormat matches millisecond ISO-8601 timestamps in UTC.
const ExportTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// AuthorityExport is the payload handed to municipal systems. Field names and
// casing are fixed.
type AuthorityExport struct {
	ID         string         `json:"id"`
	IssueType  string         `json:"issue_type"`
	Confidence float64        `json:"confidence"`
	Severity   string         `json:"severity"`
	Location   ExportLocation `json:"location"`
	Timestamp  string         `json:"timestamp"`
	Evidence   []string       `json:"evidence"`
	Notes      string         `json:"notes"`
}

type ExportLocation struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address,omitempty"`
}

// NewAuthorityExport converts r. Evidence points at {evidenceBaseURL}{id}.jpg.
func NewAuthorityExport(r models.CivicReport, evidenceBaseURL string) AuthorityExport {
	return AuthorityExport{
		ID:         r.ID,
		IssueType:  string(r.IssueType),
		Confidence: r.Confidence,
		Severity:   r.Severity.Lower(),
		Location: ExportLocation{
			Lat:     r.Location.Latitude,
			Lon:     r.Location.Longitude,
			Address: r.Location.Address,
		},
		Timestamp: r.Timestamp.UTC().Format(ExportTimeFormat),
		Evidence:  []string{EvidenceURL(evidenceBaseURL, r.ID)},
		Notes:     fmt.Sprintf("Suggested action: %s. SLA: %s", r.RecommendedAction, r.SLAEstimate),
	}
}

// EvidenceURL joins base and id without doubling the slash.
func EvidenceURL(base, id string) string {
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + id + ".jpg"
}
