// Package imgrec contains an image recorder used to automatically save images to disk.
package imgrec

import (
	"fmt"
	"go/types"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/dualread/generichttp"
	"github.com/nasa-jpl/dualread/metrics"
	"github.com/nasa-jpl/dualread/server"
)

// Recorder records image sequences with incrementing filenames in yyyy-mm-dd
// subfolders, e.g. Root/2024-05-01/img000003.fits.  It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	// counter is the internally incrementing counter
	counter int

	// last is the path of the most recently written file
	last string

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Ext is the file extension, including the dot.  Empty means ".fits".
	Ext string

	// Enabled is a flag unused by this struct that allows consumers to disable its use in their code
	Enabled bool
}

func (r *Recorder) ext() string {
	if r.Ext == "" {
		return ".fits"
	}
	return r.Ext
}

// Active reports whether consumers should record: enabled and with a root
func (r *Recorder) Active() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled && r.Root != ""
}

// mkDir makes today's folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := filepath.Join(r.Root, time.Now().Format("2006-01-02"))
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

func (r *Recorder) filename(fldr string) string {
	return filepath.Join(fldr, fmt.Sprintf("%s%06d%s", r.Prefix, r.counter, r.ext()))
}

// Write implements io.Writer and appends p to the current file.  Call Incr
// once the file is complete.
func (r *Recorder) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fldr, err := r.mkDir()
	if err != nil {
		return 0, err
	}
	if r.counter == 0 {
		// fresh recorder or new prefix, never append to an existing file
		r.incr()
	}
	fn := r.filename(fldr)
	fid, err := os.OpenFile(fn, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0666)
	if err != nil {
		return 0, err
	}
	defer fid.Close()
	r.last = fn
	return fid.Write(p)
}

// Incr updates the filename counter; it scans the folder to do so.  If there is an error, the counter is not incremented
func (r *Recorder) Incr() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incr()
	metrics.FramesRecorded.Inc()
}

func (r *Recorder) incr() {
	dn, err := r.mkDir()
	if err != nil {
		return
	}
	entries, err := os.ReadDir(dn)
	if err != nil {
		return
	}
	ext := r.ext()
	count := 0
	for _, entry := range entries {
		// skip directories, other extensions, and wrong prefix
		fn := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(fn, ext) || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ext))
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
}

// Save writes one complete file with fn and advances the counter.  It
// returns the path written.
func (r *Recorder) Save(fn func(io.Writer) error) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fldr, err := r.mkDir()
	if err != nil {
		return "", err
	}
	r.incr()
	path := r.filename(fldr)
	fid, err := os.Create(path)
	if err != nil {
		return "", err
	}
	err = fn(fid)
	if cerr := fid.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return path, err
	}
	r.last = path
	metrics.FramesRecorded.Inc()
	return path, nil
}

// Last returns the path of the most recently written file, or "" if there is none
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement server.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

func (h HTTPWrapper) setRoot(root string) error {
	rec := h.Recorder
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.Root = root
	_, err := rec.mkDir()
	return err
}

func (h HTTPWrapper) setPrefix(prefix string) error {
	rec := h.Recorder
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.Prefix = prefix
	rec.counter = 0
	return nil
}

func (h HTTPWrapper) setEnabled(b bool) error {
	rec := h.Recorder
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.Enabled = b
	return nil
}

func (h HTTPWrapper) get(fcn func(*Recorder) server.HumanPayload) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Recorder.mu.Lock()
		hp := fcn(h.Recorder)
		h.Recorder.mu.Unlock()
		hp.EncodeAndRespond(w, r)
	}
}

// GetLast serves the most recently recorded file
func (h HTTPWrapper) GetLast(w http.ResponseWriter, r *http.Request) {
	last := h.Recorder.Last()
	if last == "" {
		http.Error(w, "nothing recorded yet", http.StatusNotFound)
		return
	}
	server.ReplyWithFile(w, r, filepath.Base(last), filepath.Dir(last))
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix and
// /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder,
// and GET /autowrite/last which serves the last file written
func (h HTTPWrapper) Inject(other server.HTTPer) {
	rt := other.RT()
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = generichttp.SetString(h.setRoot)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.get(func(rec *Recorder) server.HumanPayload {
		return server.HumanPayload{T: types.String, String: rec.Root}
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = generichttp.SetString(h.setPrefix)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.get(func(rec *Recorder) server.HumanPayload {
		return server.HumanPayload{T: types.String, String: rec.Prefix}
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = generichttp.SetBool(h.setEnabled)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.get(func(rec *Recorder) server.HumanPayload {
		return server.HumanPayload{T: types.Bool, Bool: rec.Enabled}
	})
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/last"}] = h.GetLast
}
