package models

import "strings"

// IssueType is the fixed taxonomy of civic problems a report can describe.
type IssueType string

const (
	IssueTypePothole           IssueType = "POTHOLE"
	IssueTypeGarbageDump       IssueType = "GARBAGE_DUMP"
	IssueTypeIllegalParking    IssueType = "ILLEGAL_PARKING"
	IssueTypeStreetlightDamage IssueType = "STREETLIGHT_DAMAGE"
	IssueTypeBrokenRoad        IssueType = "BROKEN_ROAD"
	IssueTypeFlooding          IssueType = "FLOODING"
	IssueTypeGraffiti          IssueType = "GRAFFITI"
	IssueTypeOther             IssueType = "OTHER"
)

// IssueTypes lists every issue type in display order.
var IssueTypes = []IssueType{
	IssueTypePothole,
	IssueTypeGarbageDump,
	IssueTypeIllegalParking,
	IssueTypeStreetlightDamage,
	IssueTypeBrokenRoad,
	IssueTypeFlooding,
	IssueTypeGraffiti,
	IssueTypeOther,
}

// IsValid reports whether t is one of the known issue types.
func (t IssueType) IsValid() bool {
	switch t {
	case IssueTypePothole, IssueTypeGarbageDump, IssueTypeIllegalParking,
		IssueTypeStreetlightDamage, IssueTypeBrokenRoad, IssueTypeFlooding,
		IssueTypeGraffiti, IssueTypeOther:
		return true
	}
	return false
}

// ParseIssueType matches s against the taxonomy ignoring case, surrounding
// whitespace, and space/hyphen separators ("garbage dump" -> GARBAGE_DUMP).
func ParseIssueType(s string) (IssueType, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	t := IssueType(norm)
	return t, t.IsValid()
}

// Severity ranks how urgently an issue needs attention.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every severity from least to most urgent.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity matches s case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	return sev, sev.IsValid()
}

// Lower returns the lowercase form used by the authority export.
func (s Severity) Lower() string {
	return strings.ToLower(string(s))
}
