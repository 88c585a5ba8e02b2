package classifier

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/civiceye/civiceye/internal/models"
)

// Mock is an offline classifier used when no provider is configured. The
// result is a pure function of the image bytes.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Classify(ctx context.Context, img models.Image, _ string) (models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AnalysisResult{}, &Error{Provider: m.Name(), Err: err}
	}
	if len(img.Data) == 0 {
		return models.AnalysisResult{}, ErrNoImage
	}

	sum := sha256.Sum256(img.Data)
	issue := models.IssueTypes[int(sum[0])%len(models.IssueTypes)]
	severity := models.Severities[int(sum[1])%len(models.Severities)]
	route := defaultRouting[issue]

	return models.AnalysisResult{
		IssueType:           issue,
		Severity:            severity,
		Confidence:          0.6 + float64(sum[2]%36)/100,
		Description:         fmt.Sprintf("Automated assessment: likely %s (%s severity).", issue, severity.Lower()),
		RecommendedAction:   route.action,
		SuggestedDepartment: route.department,
		SLAEstimate:         route.sla,
		HasPII:              false,
	}, nil
}
