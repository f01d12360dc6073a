// Package acquire provides camera sources backed by capture files, either a
// fixed set replayed in a loop or a directory that another process spools
// frames into.
package acquire

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/dualread/camera"
	"github.com/nasa-jpl/dualread/linepair"
	"github.com/nasa-jpl/dualread/rawfile"
)

// ErrNoFrame is returned by Next once a source is closed or has nothing to play
var ErrNoFrame = errors.New("acquire: no frame available")

func rawFrame(f rawfile.Frame, seq uint64) camera.RawFrame {
	t := f.Time
	if t.IsZero() {
		t = time.Now()
	}
	return camera.RawFrame{
		Mode: camera.Mode{Geometry: f.Geometry, Format: f.Format},
		Data: f.Data,
		Time: t,
		Seq:  seq,
	}
}

// Playback replays capture files in order, starting over after the last
type Playback struct {
	mu     sync.Mutex
	frames []rawfile.Frame
	idx    int
	seq    uint64
}

// NewPlayback loads every file up front.  Files whose mode cannot be decoded
// are rejected here rather than on every pass.
func NewPlayback(paths ...string) (*Playback, error) {
	p := &Playback{}
	for _, path := range paths {
		f, err := rawfile.ReadFile(path)
		if err != nil {
			return nil, err
		}
		n, err := linepair.FrameBytes(f.Geometry, f.Format)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		if n != len(f.Data) {
			return nil, errors.Wrapf(linepair.ErrGeometryMismatch, "%s: %d payload bytes, %s %s needs %d", path, len(f.Data), f.Geometry, f.Format, n)
		}
		p.frames = append(p.frames, f)
	}
	return p, nil
}

// Len is the number of frames in one pass
func (p *Playback) Len() int {
	return len(p.frames)
}

// Next returns the next frame
func (p *Playback) Next(ctx context.Context) (camera.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return camera.RawFrame{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) == 0 {
		return camera.RawFrame{}, ErrNoFrame
	}
	f := p.frames[p.idx]
	p.idx = (p.idx + 1) % len(p.frames)
	rf := rawFrame(f, p.seq)
	p.seq++
	return rf, nil
}
