// Package classifier maps a civic photo to a validated AnalysisResult using an
// external multimodal model. Model output is untrusted and always goes through
// ParseAnalysis.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civiceye/civiceye/internal/models"
)

// Classifier analyzes one image. hint carries optional location context and
// may be empty.
type Classifier interface {
	Classify(ctx context.Context, img models.Image, hint string) (models.AnalysisResult, error)
	Name() string
}

// Recorder observes classification attempts. metrics.Pipeline implements it.
type Recorder interface {
	ObserveClassification(provider, outcome string, d time.Duration)
}

var (
	// ErrMalformedResponse means the model replied with something that is not a valid analysis.
	ErrMalformedResponse = errors.New("malformed classifier response")
	// ErrNoImage is returned when Classify is called without image bytes.
	ErrNoImage = errors.New("no image to classify")
)

// Error is a classification failure. Every classification failure can be
// retried by the user; Transient marks the ones retried automatically.
type Error struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s classifier: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the call may succeed if repeated unchanged.
func (e *Error) Retryable() bool {
	return e.Transient
}

// LocationHint formats coordinates as prompt context.
func LocationHint(loc *models.LocationData) string {
	if loc == nil {
		return ""
	}
	return fmt.Sprintf("Coordinates: %.6f, %.6f", loc.Latitude, loc.Longitude)
}
