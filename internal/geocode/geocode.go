// Package geocode turns coordinates into a human-readable address.
package geocode

import (
	"context"
	"fmt"
	"strconv"
)

// UnavailableAddress is used when a provider answered without an address.
const UnavailableAddress = "Location details unavailable"

// Address is a reverse geocoding result. MapsURL is always populated.
type Address struct {
	Address string `json:"address"`
	MapsURL string `json:"maps_url"`
}

// Geocoder resolves coordinates to an address. Callers treat errors as
// "no enrichment"; a failed lookup never invalidates the coordinates.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (Address, error)
	Name() string
}

// FallbackMapsURL is a search link that works without any provider.
func FallbackMapsURL(lat, lng float64) string {
	return "https://www.google.com/maps/search/?api=1&query=" +
		strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

// LabelGeocoder produces an approximate label from the coordinates alone.
type LabelGeocoder struct{}

func (LabelGeocoder) Name() string { return "label" }

func (LabelGeocoder) ReverseGeocode(_ context.Context, lat, lng float64) (Address, error) {
	return Address{
		Address: fmt.Sprintf("Near %.3f, %.3f", lat, lng),
		MapsURL: FallbackMapsURL(lat, lng),
	}, nil
}
