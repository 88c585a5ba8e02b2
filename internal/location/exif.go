package location

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ErrNoGeotag is returned when an image carries no usable GPS metadata.
var ErrNoGeotag = errors.New("image has no GPS metadata")

// DMSToDecimal converts degrees/minutes/seconds to decimal degrees. South and
// west references yield negative values. Fewer than three components yields 0.
func DMSToDecimal(dms []float64, ref string) float64 {
	if len(dms) < 3 {
		return 0
	}
	dd := dms[0] + dms[1]/60 + dms[2]/3600
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		dd = -dd
	}
	return dd
}

// ExtractGPS reads GPS latitude and longitude from JPEG or TIFF bytes.
// All four of GPSLatitude, GPSLatitudeRef, GPSLongitude and GPSLongitudeRef
// must be present, otherwise ErrNoGeotag is returned.
func ExtractGPS(data []byte) (lat, lng float64, err error) {
	block, err := exifBlock(data)
	if err != nil {
		return 0, 0, err
	}
	x, err := exif.Decode(bytes.NewReader(block))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrNoGeotag, err)
	}

	latDMS, err := rationalTriple(x, exif.GPSLatitude)
	if err != nil {
		return 0, 0, err
	}
	latRef, err := refString(x, exif.GPSLatitudeRef)
	if err != nil {
		return 0, 0, err
	}
	lngDMS, err := rationalTriple(x, exif.GPSLongitude)
	if err != nil {
		return 0, 0, err
	}
	lngRef, err := refString(x, exif.GPSLongitudeRef)
	if err != nil {
		return 0, 0, err
	}

	return DMSToDecimal(latDMS, latRef), DMSToDecimal(lngDMS, lngRef), nil
}

func rationalTriple(x *exif.Exif, field exif.FieldName) ([]float64, error) {
	tag, err := x.Get(field)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrNoGeotag, field)
	}
	if tag.Format() != tiff.RatVal || tag.Count < 3 {
		return nil, fmt.Errorf("%w: malformed %s", ErrNoGeotag, field)
	}

	out := make([]float64, 3)
	for i := range out {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrNoGeotag, field, i, err)
		}
		if den == 0 {
			return nil, fmt.Errorf("%w: %s[%d] has zero denominator", ErrNoGeotag, field, i)
		}
		out[i] = float64(num) / float64(den)
	}
	return out, nil
}

func refString(x *exif.Exif, field exif.FieldName) (string, error) {
	tag, err := x.Get(field)
	if err != nil {
		return "", fmt.Errorf("%w: missing %s", ErrNoGeotag, field)
	}
	s, err := tag.StringVal()
	if err != nil || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: malformed %s", ErrNoGeotag, field)
	}
	return s, nil
}
