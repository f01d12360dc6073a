package linepair

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrGeometryMismatch is returned when the geometry cannot be carried by
	// the wire format, or a buffer length disagrees with the geometry
	ErrGeometryMismatch = errors.New("linepair: geometry mismatch")

	// ErrBufferTooSmall is returned when the output buffer cannot hold width*height samples
	ErrBufferTooSmall = errors.New("linepair: output buffer too small")

	// ErrUnsupportedFormat is returned for wire formats with no decoder
	ErrUnsupportedFormat = errors.New("linepair: unsupported wire format")
)

// WireFormat is the bit-level encoding of one sensor line on the link
type WireFormat uint16

const (
	// Direct16 carries one 16-bit sample per pixel
	Direct16 WireFormat = iota

	// Packed12 carries 12-bit samples, 8 pixels per 3 32-bit words
	Packed12

	// SqrtLUT is the square-root companded 12-bit variant.  It has no decoder.
	SqrtLUT
)

// groupPixels is the number of pixels in one Packed12 decode unit
const groupPixels = 8

var formatNames = map[WireFormat]string{
	Direct16: "direct16",
	Packed12: "packed12",
	SqrtLUT:  "sqrt-lut",
}

// WireFormats lists every known wire format in declaration order
func WireFormats() []WireFormat {
	return []WireFormat{Direct16, Packed12, SqrtLUT}
}

// String satisfies fmt.Stringer
func (f WireFormat) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("WireFormat(%d)", uint16(f))
}

// ParseWireFormat converts a name such as "packed12" into a WireFormat.
// Matching ignores case.
func ParseWireFormat(s string) (WireFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range formatNames {
		if s == name {
			return f, nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedFormat, "unknown wire format %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (f WireFormat) MarshalText() ([]byte, error) {
	if _, ok := formatNames[f]; !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "wire format %d", uint16(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *WireFormat) UnmarshalText(b []byte) error {
	v, err := ParseWireFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// BitDepth is the number of significant bits in a decoded sample
func (f WireFormat) BitDepth() int {
	if f == Direct16 {
		return 16
	}
	return 12
}

// Transform returns the line transform for the format
func (f WireFormat) Transform() (LineTransform, error) {
	switch f {
	case Direct16:
		return Direct16Transform{}, nil
	case Packed12:
		return Packed12Transform{}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "no line transform for %s", f)
	}
}

// Geometry is the pixel size of a decoded frame
type Geometry struct {
	// Width is the number of pixels in a row
	Width int `json:"width"`

	// Height is the number of rows
	Height int `json:"height"`
}

// Pixels is Width*Height
func (g Geometry) Pixels() int {
	return g.Width * g.Height
}

// String satisfies fmt.Stringer
func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Validate reports whether frames of this geometry can be carried by f
func (g Geometry) Validate(f WireFormat) error {
	t, err := f.Transform()
	if err != nil {
		return err
	}
	return validate(t, g)
}

func validate(t LineTransform, g Geometry) error {
	if g.Width <= 0 || g.Height <= 0 {
		return errors.Wrapf(ErrGeometryMismatch, "empty geometry %s", g)
	}
	if g.Height%2 != 0 {
		return errors.Wrapf(ErrGeometryMismatch, "height %d is odd, rows are read in top/bottom pairs", g.Height)
	}
	// every sample is at most two bytes on the wire, so bounding 2*W*H keeps
	// Pixels, FrameBytes and the decode offsets from wrapping
	if g.Width > math.MaxInt32 || g.Height > math.MaxInt32 || g.Width > math.MaxInt/2/g.Height {
		return errors.Wrapf(ErrGeometryMismatch, "geometry %s is too large", g)
	}
	return t.CheckWidth(g.Width)
}

// FrameBytes is the length in bytes of one encoded frame
func FrameBytes(g Geometry, f WireFormat) (int, error) {
	t, err := f.Transform()
	if err != nil {
		return 0, err
	}
	if err := validate(t, g); err != nil {
		return 0, err
	}
	return g.Height * t.LineBytes(g.Width), nil
}
