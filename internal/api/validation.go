package api

import (
	"fmt"
	"math"
	"strings"

	"github.com/civiceye/civiceye/internal/location"
	"github.com/civiceye/civiceye/internal/models"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LocationRequest is a device position report, or a denial when Denied is set.
type LocationRequest struct {
	Denied    bool     `json:"denied"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
}

// ValidateLocationRequest checks coordinate ranges and returns the fix.
func ValidateLocationRequest(req LocationRequest) (location.Fix, error) {
	if req.Denied {
		return location.Fix{}, nil
	}
	if req.Latitude == nil {
		return location.Fix{}, ValidationError{Field: "latitude", Message: "latitude is required"}
	}
	if req.Longitude == nil {
		return location.Fix{}, ValidationError{Field: "longitude", Message: "longitude is required"}
	}

	lat, lng := *req.Latitude, *req.Longitude
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return location.Fix{}, ValidationError{Field: "latitude", Message: "latitude must be between -90 and 90"}
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return location.Fix{}, ValidationError{Field: "longitude", Message: "longitude must be between -180 and 180"}
	}

	fix := location.Fix{Latitude: lat, Longitude: lng}
	if req.Accuracy != nil {
		if math.IsNaN(*req.Accuracy) || *req.Accuracy < 0 {
			return location.Fix{}, ValidationError{Field: "accuracy", Message: "accuracy must be non-negative"}
		}
		fix.Accuracy = *req.Accuracy
	}
	return fix, nil
}

// SelectRequest picks a report for review.
type SelectRequest struct {
	ID string `json:"id"`
}

// ValidateSelectRequest requires a report id.
func ValidateSelectRequest(req SelectRequest) (string, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return "", ValidationError{Field: "id", Message: "report id is required"}
	}
	return id, nil
}

// ActionRequest applies a review action to the selected report.
type ActionRequest struct {
	Action string `json:"action"`
}

// ValidateActionRequest parses the action name case-insensitively.
func ValidateActionRequest(req ActionRequest) (models.ReviewAction, error) {
	if strings.TrimSpace(req.Action) == "" {
		return "", ValidationError{Field: "action", Message: "action is required"}
	}
	action, ok := models.ParseReviewAction(req.Action)
	if !ok {
		return "", ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", req.Action)}
	}
	return action, nil
}
