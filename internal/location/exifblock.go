package location

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// maxExifSegment bounds the TIFF block handed to the EXIF decoder. A JPEG
// APP1 segment can never exceed it since its length field is 16 bits.
const maxExifSegment = 64 << 10

// maxIFDs bounds how many directories one block may chain or nest.
const maxIFDs = 16

// tiffTypeSize is the byte size of one value of each TIFF field type.
var tiffTypeSize = map[uint16]uint64{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1,
	7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8, 13: 4,
}

// Exif, GPS and Interoperability IFD pointers.
var subIFDTags = map[uint16]bool{0x8769: true, 0x8825: true, 0xA005: true}

var exifHeader = []byte("Exif\x00\x00")

// exifBlock returns the TIFF block of a JPEG or raw TIFF image after checking
// that every directory entry fits inside it. The decoder sizes buffers from
// declared counts, so nothing unchecked may reach it.
func exifBlock(data []byte) ([]byte, error) {
	var block []byte
	switch {
	case isTIFFHeader(data):
		block = data
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		b, err := jpegExifSegment(data)
		if err != nil {
			return nil, err
		}
		block = b
	default:
		return nil, fmt.Errorf("%w: unsupported container", ErrNoGeotag)
	}

	if err := checkTIFF(block); err != nil {
		return nil, err
	}
	return block, nil
}

func isTIFFHeader(b []byte) bool {
	return len(b) >= 4 && (string(b[:4]) == "II*\x00" || string(b[:4]) == "MM\x00*")
}

// jpegExifSegment walks the JPEG markers up to the start of scan and returns
// the payload of the first Exif APP1 segment without its header.
func jpegExifSegment(data []byte) ([]byte, error) {
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return nil, fmt.Errorf("%w: corrupt JPEG marker at offset %d", ErrNoGeotag, i)
		}
		marker := data[i+1]
		switch {
		case marker == 0xFF:
			i++
			continue
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD8):
			i += 2
			continue
		case marker == 0xDA || marker == 0xD9:
			return nil, fmt.Errorf("%w: no Exif segment", ErrNoGeotag)
		}

		n := int(binary.BigEndian.Uint16(data[i+2:]))
		if n < 2 || i+2+n > len(data) {
			return nil, fmt.Errorf("%w: truncated JPEG segment at offset %d", ErrNoGeotag, i)
		}
		seg := data[i+4 : i+2+n]
		if marker == 0xE1 && bytes.HasPrefix(seg, exifHeader) {
			if len(seg) > maxExifSegment {
				return nil, fmt.Errorf("%w: Exif segment too large", ErrNoGeotag)
			}
			return seg[len(exifHeader):], nil
		}
		i += 2 + n
	}
	return nil, fmt.Errorf("%w: no Exif segment", ErrNoGeotag)
}

// checkTIFF rejects blocks whose directories point outside the block, whose
// entries declare more data than the block holds, or whose IFD chain loops.
func checkTIFF(b []byte) error {
	if len(b) < 8 {
		return fmt.Errorf("%w: TIFF header truncated", ErrNoGeotag)
	}
	var bo binary.ByteOrder
	switch string(b[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return fmt.Errorf("%w: bad TIFF byte order", ErrNoGeotag)
	}
	if bo.Uint16(b[2:]) != 42 {
		return fmt.Errorf("%w: bad TIFF magic", ErrNoGeotag)
	}

	size := uint64(len(b))
	queue := []uint32{bo.Uint32(b[4:])}
	seen := make(map[uint32]bool)

	for len(queue) > 0 {
		off := queue[0]
		queue = queue[1:]
		if off == 0 {
			continue
		}
		if seen[off] {
			return fmt.Errorf("%w: IFD loop at offset %d", ErrNoGeotag, off)
		}
		seen[off] = true
		if len(seen) > maxIFDs {
			return fmt.Errorf("%w: too many IFDs", ErrNoGeotag)
		}

		start := uint64(off)
		if start+2 > size {
			return fmt.Errorf("%w: IFD offset %d out of range", ErrNoGeotag, off)
		}
		n := uint64(bo.Uint16(b[start:]))
		end := start + 2 + n*12
		if end+4 > size {
			return fmt.Errorf("%w: IFD at offset %d truncated", ErrNoGeotag, off)
		}

		for k := uint64(0); k < n; k++ {
			e := b[start+2+k*12:]
			tag, typ := bo.Uint16(e), bo.Uint16(e[2:])
			count := uint64(bo.Uint32(e[4:]))
			width, ok := tiffTypeSize[typ]
			if !ok {
				return fmt.Errorf("%w: tag 0x%04x has unknown type %d", ErrNoGeotag, tag, typ)
			}
			total := count * width
			if total > size {
				return fmt.Errorf("%w: tag 0x%04x declares %d bytes", ErrNoGeotag, tag, total)
			}
			if total > 4 && uint64(bo.Uint32(e[8:]))+total > size {
				return fmt.Errorf("%w: tag 0x%04x data out of range", ErrNoGeotag, tag)
			}
			if subIFDTags[tag] {
				queue = append(queue, bo.Uint32(e[8:]))
			}
		}
		queue = append(queue, bo.Uint32(b[end:]))
	}
	return nil
}
