// Package exiftest builds small geotagged images for tests.
package exiftest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// GPS describes the four GPS tags written into the image. Each DMS component
// is stored as the rational value/1.
type GPS struct {
	Lat    [3]uint32
	LatRef string
	Lng    [3]uint32
	LngRef string
}

// Pittsburgh is 40°26'46"N 79°58'56"W.
var Pittsburgh = GPS{
	Lat:    [3]uint32{40, 26, 46},
	LatRef: "N",
	Lng:    [3]uint32{79, 58, 56},
	LngRef: "W",
}

const (
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5

	ifd0Offset = 8
	gpsOffset  = 26
	latOffset  = 80
	lngOffset  = 104
)

// TIFF returns a little-endian TIFF block whose IFD0 points at a GPS IFD.
func TIFF(g GPS) []byte {
	le := binary.LittleEndian
	buf := make([]byte, lngOffset+24)

	copy(buf[0:2], "II")
	le.PutUint16(buf[2:], 42)
	le.PutUint32(buf[4:], ifd0Offset)

	// IFD0: a single GPSInfo pointer.
	le.PutUint16(buf[8:], 1)
	entry(buf[10:], 0x8825, typeLong, 1, gpsOffset)
	le.PutUint32(buf[22:], 0)

	// GPS IFD.
	le.PutUint16(buf[gpsOffset:], 4)
	asciiEntry(buf[gpsOffset+2:], 0x0001, g.LatRef)
	entry(buf[gpsOffset+14:], 0x0002, typeRational, 3, latOffset)
	asciiEntry(buf[gpsOffset+26:], 0x0003, g.LngRef)
	entry(buf[gpsOffset+38:], 0x0004, typeRational, 3, lngOffset)
	le.PutUint32(buf[gpsOffset+50:], 0)

	for i, v := range g.Lat {
		le.PutUint32(buf[latOffset+i*8:], v)
		le.PutUint32(buf[latOffset+i*8+4:], 1)
	}
	for i, v := range g.Lng {
		le.PutUint32(buf[lngOffset+i*8:], v)
		le.PutUint32(buf[lngOffset+i*8+4:], 1)
	}
	return buf
}

// JPEG returns a minimal JPEG stream carrying g in an APP1 Exif segment.
func JPEG(g GPS) []byte {
	return wrapJPEG(TIFF(g))
}

// JPEGWithLongitudeCount is JPEG with the GPSLongitude entry declaring count
// rationals while still holding three.
func JPEGWithLongitudeCount(g GPS, count uint32) []byte {
	t := TIFF(g)
	binary.LittleEndian.PutUint32(t[gpsOffset+38+4:], count)
	return wrapJPEG(t)
}

// LoopingTIFF is TIFF with IFD0 naming itself as the next IFD.
func LoopingTIFF(g GPS) []byte {
	t := TIFF(g)
	binary.LittleEndian.PutUint32(t[22:], ifd0Offset)
	return t
}

func wrapJPEG(tiff []byte) []byte {
	payload := append([]byte("Exif\x00\x00"), tiff...)

	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&b, binary.BigEndian, uint16(len(payload)+2))
	b.Write(payload)
	b.Write([]byte{0xFF, 0xD9})
	return b.Bytes()
}

// PlainJPEG returns an encoded JPEG without metadata.
func PlainJPEG() []byte {
	var b bytes.Buffer
	_ = jpeg.Encode(&b, solid(), nil)
	return b.Bytes()
}

// PlainPNG returns an encoded PNG.
func PlainPNG() []byte {
	var b bytes.Buffer
	_ = png.Encode(&b, solid())
	return b.Bytes()
}

func solid() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	return img
}

func entry(b []byte, tag, typ uint16, count, value uint32) {
	le := binary.LittleEndian
	le.PutUint16(b[0:], tag)
	le.PutUint16(b[2:], typ)
	le.PutUint32(b[4:], count)
	le.PutUint32(b[8:], value)
}

// asciiEntry stores a one-character reference inline as "X\x00".
func asciiEntry(b []byte, tag uint16, ref string) {
	le := binary.LittleEndian
	le.PutUint16(b[0:], tag)
	le.PutUint16(b[2:], typeASCII)
	le.PutUint32(b[4:], 2)
	if ref != "" {
		b[8] = ref[0]
	}
	b[9] = 0
}
