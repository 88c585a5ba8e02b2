package classifier

import "github.com/civiceye/civiceye/internal/models"

type routing struct {
	department string
	action     string
	sla        string
}

// defaultRouting fills gaps when a model leaves routing fields empty.
var defaultRouting = map[models.IssueType]routing{
	models.IssueTypePothole:           {"Public Works - Roads", "Fill and seal the pothole", "72 hours"},
	models.IssueTypeGarbageDump:       {"Sanitation", "Schedule waste removal", "48 hours"},
	models.IssueTypeIllegalParking:    {"Traffic Enforcement", "Dispatch parking enforcement", "4 hours"},
	models.IssueTypeStreetlightDamage: {"Electrical Maintenance", "Repair or replace the streetlight", "5 days"},
	models.IssueTypeBrokenRoad:        {"Public Works - Roads", "Inspect and resurface the damaged section", "7 days"},
	models.IssueTypeFlooding:          {"Stormwater Management", "Clear drains and pump standing water", "24 hours"},
	models.IssueTypeGraffiti:          {"Parks and Public Spaces", "Remove graffiti", "7 days"},
	models.IssueTypeOther:             {"General Services", "Inspect and triage on site", "7 days"},
}

func fillRouting(r *models.AnalysisResult) {
	d := defaultRouting[r.IssueType]
	if r.SuggestedDepartment == "" {
		r.SuggestedDepartment = d.department
	}
	if r.RecommendedAction == "" {
		r.RecommendedAction = d.action
	}
	if r.SLAEstimate == "" {
		r.SLAEstimate = d.sla
	}
}
