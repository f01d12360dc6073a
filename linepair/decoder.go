package linepair

import (
	"sync"

	"github.com/pkg/errors"
)

// FrameDecoder places decoded lines into rows using the dual-half readout order.
// A FrameDecoder holds no per-frame state and may be shared between goroutines.
type FrameDecoder struct {
	format  WireFormat
	t       LineTransform
	workers int
}

// Option configures a FrameDecoder
type Option func(*FrameDecoder)

// WithWorkers spreads the row pairs of each frame over n goroutines.
// n <= 1 decodes on the calling goroutine.
func WithWorkers(n int) Option {
	return func(d *FrameDecoder) {
		d.workers = n
	}
}

// NewFrameDecoder returns a decoder for frames in wire format f
func NewFrameDecoder(f WireFormat, opts ...Option) (*FrameDecoder, error) {
	t, err := f.Transform()
	if err != nil {
		return nil, err
	}
	d := &FrameDecoder{format: f, t: t, workers: 1}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Format is the wire format the decoder consumes
func (d *FrameDecoder) Format() WireFormat {
	return d.format
}

// Decode reconstructs one frame from raw into out.
//
// len(raw) must be exactly FrameBytes(geo, format) and len(out) exactly
// geo.Pixels().  Nothing is written to out unless all checks pass.  raw is
// not retained.
func (d *FrameDecoder) Decode(raw []byte, geo Geometry, out []uint16) error {
	if err := check(d.t, d.format, raw, geo, out); err != nil {
		return err
	}
	pairs := geo.Height / 2
	if d.workers <= 1 || pairs < 2 {
		decodePairs(d.t, raw, geo, out, 0, pairs)
		return nil
	}
	n := d.workers
	if n > pairs {
		n = pairs
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		lo := i * pairs / n
		hi := (i + 1) * pairs / n
		go decodeChunk(&wg, d.t, raw, geo, out, lo, hi)
	}
	wg.Wait()
	return nil
}

func check(t LineTransform, f WireFormat, raw []byte, geo Geometry, out []uint16) error {
	if err := validate(t, geo); err != nil {
		return err
	}
	px := geo.Pixels()
	if len(out) < px {
		return errors.Wrapf(ErrBufferTooSmall, "output holds %d samples, %s frame needs %d", len(out), geo, px)
	}
	if len(out) != px {
		return errors.Wrapf(ErrGeometryMismatch, "output holds %d samples, %s frame needs %d", len(out), geo, px)
	}
	want := geo.Height * t.LineBytes(geo.Width)
	if len(raw) != want {
		return errors.Wrapf(ErrGeometryMismatch, "raw frame is %d bytes, %s %s frame needs %d", len(raw), geo, f, want)
	}
	return nil
}

func decodeChunk(wg *sync.WaitGroup, t LineTransform, raw []byte, geo Geometry, out []uint16, lo, hi int) {
	defer wg.Done()
	decodePairs(t, raw, geo, out, lo, hi)
}

// decodePairs decodes row pairs [lo, hi).  Pair y reads lines 2y and 2y+1
// and writes rows y and height-1-y; no two pairs share input or output.
func decodePairs(t LineTransform, raw []byte, geo Geometry, out []uint16, lo, hi int) {
	w := geo.Width
	lb := t.LineBytes(w)
	cursor := 2 * lo * lb
	for y := lo; y < hi; y++ {
		top := y * w
		t.DecodeLine(raw[cursor:cursor+lb], out[top:top+w])
		cursor += lb

		bot := (geo.Height - 1 - y) * w
		t.DecodeLine(raw[cursor:cursor+lb], out[bot:bot+w])
		cursor += lb
	}
}

// Decode decodes one frame in wire format f on the calling goroutine.
// See FrameDecoder.Decode.
func Decode(raw []byte, geo Geometry, f WireFormat, out []uint16) error {
	t, err := f.Transform()
	if err != nil {
		return err
	}
	if err := check(t, f, raw, geo, out); err != nil {
		return err
	}
	decodePairs(t, raw, geo, out, 0, geo.Height/2)
	return nil
}

// EncodeFrame is the inverse of Decode: it writes img, a row-major frame,
// into raw in wire order.  len(raw) must be FrameBytes(geo, f).
func EncodeFrame(img []uint16, geo Geometry, f WireFormat, raw []byte) error {
	t, err := f.Transform()
	if err != nil {
		return err
	}
	if err := check(t, f, raw, geo, img); err != nil {
		return err
	}
	w := geo.Width
	lb := t.LineBytes(w)
	cursor := 0
	for y := 0; y < geo.Height/2; y++ {
		top := y * w
		t.EncodeLine(img[top:top+w], raw[cursor:cursor+lb])
		cursor += lb

		bot := (geo.Height - 1 - y) * w
		t.EncodeLine(img[bot:bot+w], raw[cursor:cursor+lb])
		cursor += lb
	}
	return nil
}
