/*Package sim provides a simulated dual-half readout sensor.

The sensor draws a known test pattern, encodes it in the configured wire
format, and hands it out through the camera.Source interface.  Truth returns
the image a correct decoder must reproduce for any frame it emits.
*/
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/dualread/camera"
	"github.com/nasa-jpl/dualread/linepair"
)

// Patterns lists the test patterns the sensor can draw
var Patterns = []string{"ramp", "checker", "counter"}

// ErrUnknownPattern is returned for a pattern not in Patterns
var ErrUnknownPattern = errors.New("sim: unknown pattern")

// Sensor is a simulated camera.  It is safe for concurrent use.
type Sensor struct {
	mu      sync.Mutex
	mode    camera.Mode
	pattern string
	padding int
	lim     *rate.Limiter
	seq     uint64
}

// Option configures a Sensor
type Option func(*Sensor) error

// WithPattern selects the test pattern, "ramp" by default
func WithPattern(p string) Option {
	return func(s *Sensor) error {
		if !knownPattern(p) {
			return errors.Wrap(ErrUnknownPattern, p)
		}
		s.pattern = p
		return nil
	}
}

// WithFrameRate limits the sensor to fps frames per second.  fps <= 0 lets
// frames out as fast as they are asked for.
func WithFrameRate(fps float64) Option {
	return func(s *Sensor) error {
		if fps > 0 {
			s.lim = rate.NewLimiter(rate.Limit(fps), 1)
		} else {
			s.lim = rate.NewLimiter(rate.Inf, 1)
		}
		return nil
	}
}

// WithPadding appends n junk bytes to every line, the way a frame grabber
// pads rows out to its pitch
func WithPadding(n int) Option {
	return func(s *Sensor) error {
		if n < 0 {
			return errors.Errorf("sim: negative padding %d", n)
		}
		s.padding = n
		return nil
	}
}

// New returns a sensor running in mode m
func New(m camera.Mode, opts ...Option) (*Sensor, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	s := &Sensor{
		mode:    m,
		pattern: "ramp",
		lim:     rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func knownPattern(p string) bool {
	for _, q := range Patterns {
		if p == q {
			return true
		}
	}
	return false
}

// Mode returns the current mode
func (s *Sensor) Mode() camera.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the mode of subsequent frames
func (s *Sensor) SetMode(m camera.Mode) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	return nil
}

// Pattern returns the test pattern being drawn
func (s *Sensor) Pattern() string {
	return s.pattern
}

// Next waits for the frame period and emits the next frame
func (s *Sensor) Next(ctx context.Context) (camera.RawFrame, error) {
	if err := s.lim.Wait(ctx); err != nil {
		return camera.RawFrame{}, err
	}
	s.mu.Lock()
	m := s.mode
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	img, err := Truth(m, s.pattern, seq)
	if err != nil {
		return camera.RawFrame{}, err
	}
	n, err := linepair.FrameBytes(m.Geometry, m.Format)
	if err != nil {
		return camera.RawFrame{}, err
	}
	packed := make([]byte, n)
	if err := linepair.EncodeFrame(img, m.Geometry, m.Format, packed); err != nil {
		return camera.RawFrame{}, err
	}
	rf := camera.RawFrame{Mode: m, Data: packed, Time: time.Now(), Seq: seq}
	if s.padding > 0 {
		rf.Data, rf.Stride = pad(packed, m.Geometry.Height, s.padding)
	}
	return rf, nil
}

// pad spreads lines of packed out to a pitch of extra more bytes, filling the
// gaps with 0xAA
func pad(packed []byte, lines, extra int) ([]byte, int) {
	lb := len(packed) / lines
	stride := lb + extra
	out := make([]byte, stride*lines)
	for i := range out {
		out[i] = 0xAA
	}
	for row := 0; row < lines; row++ {
		copy(out[row*stride:], packed[row*lb:(row+1)*lb])
	}
	return out, stride
}

// Truth returns the image the sensor draws for frame seq in mode m.  Values
// never exceed the format's bit depth.
func Truth(m camera.Mode, pattern string, seq uint64) ([]uint16, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	w, h := m.Geometry.Width, m.Geometry.Height
	mask := uint32(1)<<uint(m.Format.BitDepth()) - 1
	img := make([]uint16, w*h)
	switch pattern {
	case "ramp":
		for idx := range img {
			img[idx] = uint16((uint32(idx) + uint32(seq)) & mask)
		}
	case "checker":
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if (x/4+y/4+int(seq%2))%2 == 1 {
					img[y*w+x] = uint16(mask)
				}
			}
		}
	case "counter":
		// every pixel of a row holds the row index plus the frame counter,
		// so a misplaced row is visible at a glance
		for y := 0; y < h; y++ {
			v := uint16((uint32(y) + uint32(seq)) & mask)
			row := img[y*w : (y+1)*w]
			for x := range row {
				row[x] = v
			}
		}
	default:
		return nil, errors.Wrap(ErrUnknownPattern, pattern)
	}
	return img, nil
}
