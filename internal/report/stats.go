package report

import "github.com/civiceye/civiceye/internal/models"

// Stats feeds the authority dashboard.
type Stats struct {
	Total             int                         `json:"total"`
	Critical          int                         `json:"critical"`
	Pending           int                         `json:"pending"`
	AverageConfidence float64                     `json:"average_confidence"`
	BySeverity        map[models.Severity]int     `json:"by_severity"`
	ByIssueType       map[models.IssueType]int    `json:"by_issue_type"`
	ByStatus          map[models.ReportStatus]int `json:"by_status"`
}

// Summarize aggregates reports. Every severity, issue type and status is
// present in the maps, zero or not. Average confidence is 0 for no reports.
func Summarize(reports []models.CivicReport) Stats {
	stats := Stats{
		BySeverity:  make(map[models.Severity]int, len(models.Severities)),
		ByIssueType: make(map[models.IssueType]int, len(models.IssueTypes)),
		ByStatus:    make(map[models.ReportStatus]int, 4),
	}
	for _, s := range models.Severities {
		stats.BySeverity[s] = 0
	}
	for _, t := range models.IssueTypes {
		stats.ByIssueType[t] = 0
	}
	for _, s := range []models.ReportStatus{
		models.ReportStatusPending, models.ReportStatusDispatched,
		models.ReportStatusReviewed, models.ReportStatusResolved,
	} {
		stats.ByStatus[s] = 0
	}

	if len(reports) == 0 {
		return stats
	}

	var sum float64
	for _, r := range reports {
		stats.Total++
		sum += r.Confidence
		stats.BySeverity[r.Severity]++
		stats.ByIssueType[r.IssueType]++
		stats.ByStatus[r.Status]++
		if r.Severity == models.SeverityCritical {
			stats.Critical++
		}
		if r.Status == models.ReportStatusPending {
			stats.Pending++
		}
	}
	stats.AverageConfidence = sum / float64(len(reports))
	return stats
}
