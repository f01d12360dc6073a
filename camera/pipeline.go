package camera

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	ilog "github.com/nasa-jpl/dualread/internal/logging"
	"github.com/nasa-jpl/dualread/linepair"
	"github.com/nasa-jpl/dualread/metrics"
)

// HeaderVersion is written to the first card of every FITS header
const HeaderVersion = "dualread-1"

// Camera decodes frames pulled from a Source.  It is safe for concurrent use;
// frames are pulled from the source one at a time.
type Camera struct {
	src     Source
	workers int
	session uuid.UUID
	log     logging.LeveledLogger
	tap     func(RawFrame)

	// acq serializes access to the source
	acq sync.Mutex

	mu       sync.Mutex
	decoders map[linepair.WireFormat]*linepair.FrameDecoder
	last     Mode
	seen     bool
}

// Option configures a Camera
type Option func(*Camera)

// WithWorkers decodes each frame on n goroutines
func WithWorkers(n int) Option {
	return func(c *Camera) {
		c.workers = n
	}
}

// WithTap calls fn with every raw frame as it is acquired, before decoding.
// fn must not retain rf.Data.
func WithTap(fn func(rf RawFrame)) Option {
	return func(c *Camera) {
		c.tap = fn
	}
}

// New returns a Camera reading from src
func New(src Source, opts ...Option) *Camera {
	c := &Camera{
		src:      src,
		workers:  1,
		session:  uuid.New(),
		log:      ilog.NewLogger("camera"),
		decoders: map[linepair.WireFormat]*linepair.FrameDecoder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if ms, ok := src.(ModeSetter); ok {
		c.last, c.seen = ms.Mode(), true
	}
	return c
}

// Session is a random id for this Camera, stamped into FITS headers
func (c *Camera) Session() uuid.UUID {
	return c.session
}

// Source returns the wrapped source
func (c *Camera) Source() Source {
	return c.src
}

func (c *Camera) decoder(f linepair.WireFormat) (*linepair.FrameDecoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.decoders[f]; ok {
		return d, nil
	}
	d, err := linepair.NewFrameDecoder(f, linepair.WithWorkers(c.workers))
	if err != nil {
		return nil, err
	}
	c.decoders[f] = d
	return d, nil
}

// Mode returns the source's mode if it has one, otherwise the mode of the
// most recent frame
func (c *Camera) Mode() (Mode, error) {
	if ms, ok := c.src.(ModeSetter); ok {
		return ms.Mode(), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seen {
		return Mode{}, ErrNoMode
	}
	return c.last, nil
}

// SetMode reconfigures the source.  Invalid modes are rejected before the
// source sees them.
func (c *Camera) SetMode(m Mode) error {
	ms, ok := c.src.(ModeSetter)
	if !ok {
		return ErrModeNotSettable
	}
	if err := m.Validate(); err != nil {
		return err
	}
	c.acq.Lock()
	defer c.acq.Unlock()
	if err := ms.SetMode(m); err != nil {
		return err
	}
	c.log.Infof("mode set to %s %s", m.Geometry, m.Format)
	c.note(m)
	return nil
}

func (c *Camera) note(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last, c.seen = m, true
}

// wire strips grabber padding from rf and checks the result against the
// frame's mode, before anything is sized from that mode
func (c *Camera) wire(rf RawFrame) ([]byte, error) {
	m := rf.Mode
	n, err := linepair.FrameBytes(m.Geometry, m.Format)
	if err != nil {
		return nil, err
	}
	data := rf.Data
	if rf.Stride != 0 {
		lb, err := m.LineBytes()
		if err != nil {
			return nil, err
		}
		data, err = Unpad(rf.Data, rf.Stride, lb, m.Geometry.Height)
		if err != nil {
			return nil, errors.Wrap(linepair.ErrGeometryMismatch, err.Error())
		}
	}
	if len(data) != n {
		return nil, errors.Wrapf(linepair.ErrGeometryMismatch, "raw frame is %d bytes, %s %s frame needs %d", len(data), m.Geometry, m.Format, n)
	}
	return data, nil
}

func (c *Camera) reject(rf RawFrame, err error) error {
	metrics.ObserveDecode(rf.Mode.Format.String(), 0, err)
	c.log.Warnf("frame %d rejected: %v", rf.Seq, err)
	return err
}

// Decode strips grabber padding from rf and decodes it into out, which must
// hold exactly rf.Mode.Geometry.Pixels() samples
func (c *Camera) Decode(rf RawFrame, out []uint16) error {
	m := rf.Mode
	d, err := c.decoder(m.Format)
	if err != nil {
		return c.reject(rf, err)
	}
	data, err := c.wire(rf)
	if err != nil {
		return c.reject(rf, err)
	}
	start := time.Now()
	err = d.Decode(data, m.Geometry, out)
	metrics.ObserveDecode(m.Format.String(), time.Since(start), err)
	if err != nil {
		c.log.Warnf("frame %d rejected: %v", rf.Seq, err)
		return err
	}
	c.note(m)
	return nil
}

func (c *Camera) next(ctx context.Context) (RawFrame, error) {
	rf, err := c.src.Next(ctx)
	if err != nil {
		return rf, errors.Wrap(err, "camera: acquire")
	}
	if c.tap != nil {
		c.tap(rf)
	}
	return rf, nil
}

// GetFrame acquires and decodes one frame
func (c *Camera) GetFrame(ctx context.Context) (Image, error) {
	c.acq.Lock()
	defer c.acq.Unlock()
	rf, err := c.next(ctx)
	if err != nil {
		return Image{}, err
	}
	if rf.Data, err = c.wire(rf); err != nil {
		return Image{}, c.reject(rf, err)
	}
	rf.Stride = 0
	img := Image{
		Pix:    make([]uint16, rf.Mode.Geometry.Pixels()),
		Mode:   rf.Mode,
		Frames: 1,
		Time:   rf.Time,
		Seq:    rf.Seq,
	}
	if err := c.Decode(rf, img.Pix); err != nil {
		return Image{}, err
	}
	return img, nil
}

// Burst acquires n frames, paced at no more than fps frames per second, and
// decodes them into one contiguous stack.  fps <= 0 takes frames as fast as
// the source delivers them.
func (c *Camera) Burst(ctx context.Context, n int, fps float64) (Image, error) {
	if n <= 0 {
		return Image{}, errors.Errorf("camera: burst of %d frames", n)
	}
	c.acq.Lock()
	defer c.acq.Unlock()

	lim := rate.NewLimiter(rate.Inf, 1)
	if fps > 0 {
		lim = rate.NewLimiter(rate.Limit(fps), 1)
	}
	var img Image
	for i := 0; i < n; i++ {
		if err := lim.Wait(ctx); err != nil {
			return Image{}, errors.Wrap(err, "camera: burst")
		}
		rf, err := c.next(ctx)
		if err != nil {
			return Image{}, err
		}
		if rf.Data, err = c.wire(rf); err != nil {
			return Image{}, c.reject(rf, err)
		}
		rf.Stride = 0
		if i == 0 {
			if px := rf.Mode.Geometry.Pixels(); n > math.MaxInt/px {
				return Image{}, errors.Errorf("camera: burst of %d %s frames is too large", n, rf.Mode.Geometry)
			}
			img = Image{
				Pix:    make([]uint16, n*rf.Mode.Geometry.Pixels()),
				Mode:   rf.Mode,
				Frames: n,
				Time:   rf.Time,
				Seq:    rf.Seq,
			}
		} else if rf.Mode != img.Mode {
			return Image{}, errors.Wrapf(ErrModeChanged, "frame %d of %d", i+1, n)
		}
		if err := c.Decode(rf, img.Frame(i)); err != nil {
			return Image{}, err
		}
	}
	return img, nil
}

// CollectHeaderMetadata produces the FITS cards describing the current mode.
// The first card is always the header version.
func (c *Camera) CollectHeaderMetadata() []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "HDRVER", Value: HeaderVersion, Comment: "header version"},
		{Name: "SESSION", Value: c.session.String(), Comment: "camera session id"},
	}
	m, err := c.Mode()
	if err != nil {
		return cards
	}
	return append(cards, ModeCards(m)...)
}

// ModeCards describes a mode in FITS cards
func ModeCards(m Mode) []fitsio.Card {
	return []fitsio.Card{
		{Name: "WIREFMT", Value: m.Format.String(), Comment: "sensor wire format"},
		{Name: "BITDEPTH", Value: m.Format.BitDepth(), Comment: "significant bits per sample"},
		{Name: "READOUT", Value: "dual-half", Comment: "rows read top-down and bottom-up in pairs"},
	}
}

// ImageCards describes when and in which order img was captured
func ImageCards(img Image) []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "SEQ", Value: int(img.Seq), Comment: "source frame counter of the first frame"},
		{Name: "NFRAMES", Value: img.Frames, Comment: "frames in this file"},
	}
	if !img.Time.IsZero() {
		cards = append(cards, fitsio.Card{Name: "DATE-OBS", Value: img.Time.UTC().Format("2006-01-02T15:04:05.000"), Comment: "capture time of the first frame, UTC"})
	}
	return cards
}
