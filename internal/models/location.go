package models

// ExifAccuracy is the accuracy in metres recorded for coordinates read from
// photo metadata. EXIF carries no accuracy, so a fixed high-confidence value is used.
const ExifAccuracy = 5.0

// LocationData is the resolved position of a report. Address and MapsURL are
// enrichments added after the coordinates are known.
type LocationData struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Address   string   `json:"address,omitempty"`
	MapsURL   string   `json:"maps_url,omitempty"`
}

// SameCoordinates reports whether l and o point at the same position.
func (l LocationData) SameCoordinates(o LocationData) bool {
	return l.Latitude == o.Latitude && l.Longitude == o.Longitude
}

// Clone returns a deep copy of l.
func (l *LocationData) Clone() *LocationData {
	if l == nil {
		return nil
	}
	c := *l
	if l.Accuracy != nil {
		acc := *l.Accuracy
		c.Accuracy = &acc
	}
	return &c
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
