package acquire

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/fsnotify/fsnotify"
	"github.com/pion/logging"
	"github.com/pkg/errors"

	"github.com/nasa-jpl/dualread/camera"
	ilog "github.com/nasa-jpl/dualread/internal/logging"
	"github.com/nasa-jpl/dualread/rawfile"
)

// Spool is a source fed by capture files appearing in a directory.  Writers
// need not be atomic; a file that fails its checksum is retried until it
// settles or the retry budget runs out.
type Spool struct {
	Dir string

	watcher *fsnotify.Watcher
	frames  chan camera.RawFrame
	done    chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	maxElapsed time.Duration

	mu   sync.Mutex
	seen map[string]bool
	seq  uint64

	closeOnce sync.Once
}

// SpoolOption configures a Spool
type SpoolOption func(*Spool)

// WithQueue sets how many decoded-but-unread frames are held before the
// oldest is dropped
func WithQueue(n int) SpoolOption {
	return func(s *Spool) {
		if n < 1 {
			n = 1
		}
		s.frames = make(chan camera.RawFrame, n)
	}
}

// WithRetryBudget bounds how long a partially written file is retried
func WithRetryBudget(d time.Duration) SpoolOption {
	return func(s *Spool) {
		s.maxElapsed = d
	}
}

// NewSpool starts watching dir.  Files already present are ignored.
func NewSpool(dir string, opts ...SpoolOption) (*Spool, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "acquire: watcher")
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "acquire: watch %s", dir)
	}
	s := &Spool{
		Dir:        dir,
		watcher:    w,
		frames:     make(chan camera.RawFrame, 16),
		done:       make(chan struct{}),
		log:        ilog.NewLogger("acquire"),
		maxElapsed: 3 * time.Second,
		seen:       map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

func (s *Spool) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || filepath.Ext(ev.Name) != rawfile.Ext {
				continue
			}
			s.ingest(ev.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warnf("watch %s: %v", s.Dir, err)
		}
	}
}

func (s *Spool) retryPolicy() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     5 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         250 * time.Millisecond,
		MaxElapsedTime:      s.maxElapsed,
		Clock:               backoff.SystemClock,
	}
}

func (s *Spool) ingest(path string) {
	s.mu.Lock()
	done := s.seen[path]
	s.mu.Unlock()
	if done {
		return
	}

	var f rawfile.Frame
	op := func() error {
		select {
		case <-s.done:
			return nil
		default:
		}
		var err error
		f, err = rawfile.ReadFile(path)
		return err
	}
	b := s.retryPolicy()
	b.Reset()
	if err := backoff.Retry(op, b); err != nil {
		s.log.Warnf("giving up on %s: %v", path, err)
		return
	}
	if f.Data == nil {
		// closed while retrying
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[path] = true
	rf := rawFrame(f, s.seq)
	s.seq++
	s.log.Debugf("spooled %s as frame %d", path, rf.Seq)

	// mu is held until the frame is queued so seq never runs ahead of the queue
	for {
		select {
		case s.frames <- rf:
			return
		case <-s.done:
			return
		default:
		}
		// full: drop the oldest so readers always see recent frames
		select {
		case old := <-s.frames:
			s.log.Warnf("queue full, dropped frame %d", old.Seq)
		default:
		}
	}
}

// Next blocks until a frame arrives, ctx is done, or the spool is closed
func (s *Spool) Next(ctx context.Context) (camera.RawFrame, error) {
	select {
	case rf := <-s.frames:
		return rf, nil
	case <-ctx.Done():
		return camera.RawFrame{}, ctx.Err()
	case <-s.done:
		return camera.RawFrame{}, ErrNoFrame
	}
}

// Close stops watching.  Frames still queued are discarded.
func (s *Spool) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
	})
	return err
}
