package models

import (
	"strings"
	"time"
)

// AnalysisResult is the validated output of the issue classifier.
type AnalysisResult struct {
	IssueType           IssueType `json:"issue_type"`
	Severity            Severity  `json:"severity"`
	Confidence          float64   `json:"confidence"` // 0-1 scale
	Description         string    `json:"description"`
	RecommendedAction   string    `json:"recommended_action"`
	SuggestedDepartment string    `json:"suggested_department"`
	SLAEstimate         string    `json:"sla_estimate"`
	HasPII              bool      `json:"has_pii"`
}

// Image is an uploaded photo. Data stays server side.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
	SHA256   string `json:"sha256"`
}

// Clone returns a copy of img that shares no memory with it.
func (img Image) Clone() Image {
	c := img
	if img.Data != nil {
		c.Data = append([]byte(nil), img.Data...)
	}
	return c
}

// CivicReport is a submitted issue. Status is the only field that changes after creation.
type CivicReport struct {
	ID                  string       `json:"id"`
	Timestamp           time.Time    `json:"timestamp"`
	IssueType           IssueType    `json:"issue_type"`
	Severity            Severity     `json:"severity"`
	Confidence          float64      `json:"confidence"`
	Description         string       `json:"description"`
	RecommendedAction   string       `json:"recommended_action"`
	SuggestedDepartment string       `json:"suggested_department"`
	SLAEstimate         string       `json:"sla_estimate"`
	Location            LocationData `json:"location"`
	Image               Image        `json:"image"`
	HasPII              bool         `json:"has_pii"`
	Status              ReportStatus `json:"status"`
}

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "PENDING"    // Submitted, awaiting triage
	ReportStatusDispatched ReportStatus = "DISPATCHED" // Sent to a department
	ReportStatusReviewed   ReportStatus = "REVIEWED"   // Rejected or closed without work
	ReportStatusResolved   ReportStatus = "RESOLVED"   // Work completed
)

func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusPending, ReportStatusDispatched, ReportStatusReviewed, ReportStatusResolved:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusResolved || s == ReportStatusReviewed
}

// ReviewAction is an operator decision on a report.
type ReviewAction string

const (
	ReviewActionDispatch ReviewAction = "DISPATCH"
	ReviewActionResolve  ReviewAction = "RESOLVE"
	ReviewActionReject   ReviewAction = "REJECT"
)

// ParseReviewAction matches s case-insensitively.
func ParseReviewAction(s string) (ReviewAction, bool) {
	a := ReviewAction(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := a.Target()
	return a, ok
}

// Target returns the status an action moves a report to.
func (a ReviewAction) Target() (ReportStatus, bool) {
	switch a {
	case ReviewActionDispatch:
		return ReportStatusDispatched, true
	case ReviewActionResolve:
		return ReportStatusResolved, true
	case ReviewActionReject:
		return ReportStatusReviewed, true
	}
	return "", false
}

// allowedActions is the transition graph keyed by current status.
var allowedActions = map[ReportStatus][]ReviewAction{
	ReportStatusPending:    {ReviewActionDispatch, ReviewActionReject},
	ReportStatusDispatched: {ReviewActionResolve, ReviewActionReject},
}

// AllowedActions returns the actions accepted from status s.
func AllowedActions(s ReportStatus) []ReviewAction {
	return append([]ReviewAction(nil), allowedActions[s]...)
}

// CanApply reports whether action a is accepted from status s.
func CanApply(s ReportStatus, a ReviewAction) bool {
	for _, allowed := range allowedActions[s] {
		if allowed == a {
			return true
		}
	}
	return false
}
