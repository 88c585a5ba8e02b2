package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/civiceye/civiceye/internal/models"
)

var requiredKeys = []string{
	"issue_type",
	"severity",
	"confidence",
	"description",
	"recommended_action",
	"suggested_department",
	"sla_estimate",
	"has_pii",
}

// ParseAnalysis validates raw model output.
//
// Unknown issue types become OTHER. Unknown severities, missing keys, and
// non-finite confidence are rejected with ErrMalformedResponse. Confidence is
// clamped to [0, 1].
func ParseAnalysis(raw string) (models.AnalysisResult, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return models.AnalysisResult{}, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for _, k := range requiredKeys {
		if _, ok := fields[k]; !ok {
			return models.AnalysisResult{}, fmt.Errorf("%w: missing %q", ErrMalformedResponse, k)
		}
	}

	var (
		result models.AnalysisResult
		err    error
	)

	issue, err := stringField(fields, "issue_type")
	if err != nil {
		return models.AnalysisResult{}, err
	}
	if t, ok := models.ParseIssueType(issue); ok {
		result.IssueType = t
	} else {
		result.IssueType = models.IssueTypeOther
	}

	sev, err := stringField(fields, "severity")
	if err != nil {
		return models.AnalysisResult{}, err
	}
	s, ok := models.ParseSeverity(sev)
	if !ok {
		return models.AnalysisResult{}, fmt.Errorf("%w: unknown severity %q", ErrMalformedResponse, sev)
	}
	result.Severity = s

	if result.Confidence, err = confidenceField(fields["confidence"]); err != nil {
		return models.AnalysisResult{}, err
	}
	if result.Description, err = stringField(fields, "description"); err != nil {
		return models.AnalysisResult{}, err
	}
	if result.RecommendedAction, err = stringField(fields, "recommended_action"); err != nil {
		return models.AnalysisResult{}, err
	}
	if result.SuggestedDepartment, err = stringField(fields, "suggested_department"); err != nil {
		return models.AnalysisResult{}, err
	}
	if result.SLAEstimate, err = stringField(fields, "sla_estimate"); err != nil {
		return models.AnalysisResult{}, err
	}
	if err := json.Unmarshal(fields["has_pii"], &result.HasPII); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: has_pii must be a boolean", ErrMalformedResponse)
	}

	fillRouting(&result)
	return result, nil
}

// extractJSONObject strips markdown fences and returns the outermost {...} span.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	var s string
	if err := json.Unmarshal(fields[key], &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedResponse, key)
	}
	return strings.TrimSpace(s), nil
}

func confidenceField(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		// "0.8" as a string is accepted.
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("%w: confidence must be a number", ErrMalformedResponse)
		}
		parsed, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr != nil {
			return 0, fmt.Errorf("%w: confidence must be a number", ErrMalformedResponse)
		}
		v = parsed
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: confidence is not finite", ErrMalformedResponse)
	}
	return clamp01(v), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// trimmed is used by providers to cap logged response bodies.
func trimmed(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
