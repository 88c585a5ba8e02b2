// Package report builds civic reports and keeps the in-memory collection.
package report

import (
	"errors"
	"time"

	"github.com/civiceye/civiceye/internal/models"
	"github.com/google/uuid"
)

var (
	ErrMissingAnalysis = errors.New("report requires an analysis")
	ErrMissingImage    = errors.New("report requires an image")
)

// Builder assembles immutable reports. It performs no I/O.
type Builder struct {
	now   func() time.Time
	newID func() string
}

func NewBuilder() *Builder {
	return &Builder{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Build combines an analysis, a location snapshot and the photo into a
// PENDING report. A nil location yields zero coordinates; whether that is
// acceptable is decided by the caller.
func (b *Builder) Build(analysis *models.AnalysisResult, loc *models.LocationData, img *models.Image) (models.CivicReport, error) {
	if analysis == nil {
		return models.CivicReport{}, ErrMissingAnalysis
	}
	if img == nil || len(img.Data) == 0 {
		return models.CivicReport{}, ErrMissingImage
	}

	var location models.LocationData
	if loc != nil {
		location = *loc.Clone()
	}

	return models.CivicReport{
		ID:                  b.newID(),
		Timestamp:           b.now().UTC(),
		IssueType:           analysis.IssueType,
		Severity:            analysis.Severity,
		Confidence:          analysis.Confidence,
		Description:         analysis.Description,
		RecommendedAction:   analysis.RecommendedAction,
		SuggestedDepartment: analysis.SuggestedDepartment,
		SLAEstimate:         analysis.SLAEstimate,
		Location:            location,
		Image:               img.Clone(),
		HasPII:              analysis.HasPII,
		Status:              models.ReportStatusPending,
	}, nil
}
