/*Package camera turns raw frames from a dual-half readout sensor into images.

A Source stands in for the frame grabber: it hands over one raw wire frame at
a time along with the Mode (geometry and wire format) it was captured in.  The
Camera type pulls frames from a Source, strips any grabber row padding, and
decodes them with package linepair.

Sources that can be reconfigured implement ModeSetter; the mode itself is
chosen elsewhere, by whatever configures the sensor.
*/
package camera

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/dualread/linepair"
)

var (
	// ErrModeNotSettable is returned by SetMode when the source has a fixed mode
	ErrModeNotSettable = errors.New("camera: source mode cannot be changed")

	// ErrNoMode is returned when the mode is not known yet, e.g. before the
	// first frame from a file-backed source
	ErrNoMode = errors.New("camera: mode not known until a frame arrives")

	// ErrModeChanged is returned when the mode changes in the middle of a burst
	ErrModeChanged = errors.New("camera: mode changed during burst")
)

// Mode is an acquisition mode: the size of the decoded frame and the wire
// format it travels in
type Mode struct {
	// Geometry is the decoded frame size
	Geometry linepair.Geometry `json:"geometry"`

	// Format is the wire format
	Format linepair.WireFormat `json:"format"`
}

// Validate reports whether frames in this mode can be decoded
func (m Mode) Validate() error {
	return m.Geometry.Validate(m.Format)
}

// LineBytes is the encoded length of one wire line in this mode
func (m Mode) LineBytes() (int, error) {
	t, err := m.Format.Transform()
	if err != nil {
		return 0, err
	}
	return t.LineBytes(m.Geometry.Width), nil
}

// RawFrame is one frame as delivered by a frame grabber
type RawFrame struct {
	// Mode is the mode the frame was captured in
	Mode Mode

	// Data is the wire frame.  The Source may reuse it after the next call to Next.
	Data []byte

	// Stride is the grabber's row pitch in bytes.  Zero means lines are packed.
	Stride int

	// Time is the capture time
	Time time.Time

	// Seq is the source's frame counter
	Seq uint64
}

// Source delivers raw frames, blocking until one is available or ctx is done
type Source interface {
	Next(ctx context.Context) (RawFrame, error)
}

// ModeSetter is a Source whose acquisition mode can be changed
type ModeSetter interface {
	// Mode returns the current mode
	Mode() Mode

	// SetMode changes the mode of subsequent frames
	SetMode(Mode) error
}

// Image is one decoded frame, or a stack of frames from a burst
type Image struct {
	// Pix holds Frames row-major frames back to back
	Pix []uint16

	// Mode is the mode every frame was captured in
	Mode Mode

	// Frames is the number of frames in Pix
	Frames int

	// Time is the capture time of the first frame
	Time time.Time

	// Seq is the source frame counter of the first frame
	Seq uint64
}

// Width is the frame width in pixels
func (i Image) Width() int {
	return i.Mode.Geometry.Width
}

// Height is the frame height in pixels
func (i Image) Height() int {
	return i.Mode.Geometry.Height
}

// Frame returns the n-th frame of the stack
func (i Image) Frame(n int) []uint16 {
	px := i.Mode.Geometry.Pixels()
	return i.Pix[n*px : (n+1)*px]
}
