package linepair

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// LineTransform converts between one encoded sensor line and its samples.
//
// DecodeLine and EncodeLine do not validate; callers guarantee that
// len(raw) == LineBytes(len(samples)) and that CheckWidth(len(samples)) is nil.
type LineTransform interface {
	// LineBytes is the encoded size in bytes of a line width pixels wide
	LineBytes(width int) int

	// CheckWidth returns ErrGeometryMismatch if width cannot be encoded
	CheckWidth(width int) error

	// DecodeLine unpacks raw into out
	DecodeLine(raw []byte, out []uint16)

	// EncodeLine packs samples into raw; bits above the format's depth are dropped
	EncodeLine(samples []uint16, raw []byte)
}

// Direct16Transform is the identity transform, one little-endian word per pixel
type Direct16Transform struct{}

// LineBytes is two bytes per pixel
func (Direct16Transform) LineBytes(width int) int {
	return 2 * width
}

// CheckWidth accepts any positive width
func (Direct16Transform) CheckWidth(width int) error {
	if width <= 0 {
		return errors.Wrapf(ErrGeometryMismatch, "width %d", width)
	}
	return nil
}

// DecodeLine copies each 16-bit word unchanged
func (Direct16Transform) DecodeLine(raw []byte, out []uint16) {
	raw = raw[:2*len(out)]
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
}

// EncodeLine writes each sample as a little-endian word
func (Direct16Transform) EncodeLine(samples []uint16, raw []byte) {
	raw = raw[:2*len(samples)]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[2*i:], s)
	}
}

// DecodeWords is DecodeLine for a line already loaded as 16-bit words
func (Direct16Transform) DecodeWords(words []uint16, out []uint16) error {
	if len(words) != len(out) {
		return errors.Wrapf(ErrGeometryMismatch, "%d words for %d pixels", len(words), len(out))
	}
	copy(out, words)
	return nil
}

// Packed12Transform unpacks the scrambled 12-bit encoding.
// Every 3 32-bit words (96 bits) carry 8 pixels.
type Packed12Transform struct{}

const groupBytes = 12

// LineBytes is 3 words per 8 pixels, i.e. 1.5 bytes per pixel
func (Packed12Transform) LineBytes(width int) int {
	return width / groupPixels * groupBytes
}

// CheckWidth requires a positive multiple of 8
func (Packed12Transform) CheckWidth(width int) error {
	if width <= 0 || width%groupPixels != 0 {
		return errors.Wrapf(ErrGeometryMismatch, "width %d is not a positive multiple of %d", width, groupPixels)
	}
	return nil
}

// DecodeLine unpacks groups of 3 little-endian words into 8 samples
func (Packed12Transform) DecodeLine(raw []byte, out []uint16) {
	for len(out) >= groupPixels && len(raw) >= groupBytes {
		unpack(out[:groupPixels:groupPixels],
			binary.LittleEndian.Uint32(raw[0:4]),
			binary.LittleEndian.Uint32(raw[4:8]),
			binary.LittleEndian.Uint32(raw[8:12]))
		raw = raw[groupBytes:]
		out = out[groupPixels:]
	}
}

// EncodeLine packs groups of 8 samples into 3 little-endian words
func (Packed12Transform) EncodeLine(samples []uint16, raw []byte) {
	var g [groupPixels]uint16
	for len(samples) >= groupPixels && len(raw) >= groupBytes {
		copy(g[:], samples[:groupPixels])
		w0, w1, w2 := PackGroup(g)
		binary.LittleEndian.PutUint32(raw[0:4], w0)
		binary.LittleEndian.PutUint32(raw[4:8], w1)
		binary.LittleEndian.PutUint32(raw[8:12], w2)
		raw = raw[groupBytes:]
		samples = samples[groupPixels:]
	}
}

// DecodeWords is DecodeLine for a line already loaded as 32-bit words
func (Packed12Transform) DecodeWords(words []uint32, out []uint16) error {
	if len(out)%groupPixels != 0 || len(words) != len(out)/groupPixels*3 {
		return errors.Wrapf(ErrGeometryMismatch, "%d words for %d pixels", len(words), len(out))
	}
	for len(out) > 0 {
		unpack(out[:groupPixels:groupPixels], words[0], words[1], words[2])
		words = words[3:]
		out = out[groupPixels:]
	}
	return nil
}

// UnpackGroup decodes one 3-word group into 8 LSB-aligned 12-bit samples
func UnpackGroup(w0, w1, w2 uint32) [8]uint16 {
	var p [8]uint16
	unpack(p[:], w0, w1, w2)
	return p
}

func unpack(p []uint16, w0, w1, w2 uint32) {
	_ = p[7]
	p[0] = uint16(w0>>4) & 0xFFF
	p[1] = uint16(w0>>24)&0xFF | uint16(w0&0xF)<<8
	p[2] = uint16(w1>>12)&0xF | uint16(w0>>16&0xFF)<<4
	p[3] = uint16(w1) & 0xFFF
	p[4] = uint16(w1>>20) & 0xFFF
	p[5] = uint16(w2>>8)&0xFF | uint16(w1>>16&0xF)<<8
	p[6] = uint16(w2>>28)&0xF | uint16(w2&0xFF)<<4
	p[7] = uint16(w2>>16) & 0xFFF
}

// PackGroup is the inverse of UnpackGroup.  Only the low 12 bits of each sample are kept.
func PackGroup(p [8]uint16) (w0, w1, w2 uint32) {
	var s [8]uint32
	for i, v := range p {
		s[i] = uint32(v) & 0xFFF
	}
	w0 = s[1]>>8 | s[0]<<4 | (s[2]>>4)<<16 | (s[1]&0xFF)<<24
	w1 = s[3] | (s[2]&0xF)<<12 | (s[5]>>8)<<16 | s[4]<<20
	w2 = s[6]>>4 | (s[5]&0xFF)<<8 | s[7]<<16 | (s[6]&0xF)<<28
	return w0, w1, w2
}
