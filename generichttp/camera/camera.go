// Package camera provides a generic HTTP interface to a dual-half readout camera
package camera

import (
	"encoding/json"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"

	"github.com/nasa-jpl/dualread/camera"
	"github.com/nasa-jpl/dualread/generichttp"
	"github.com/nasa-jpl/dualread/imgrec"
	"github.com/nasa-jpl/dualread/linepair"
	"github.com/nasa-jpl/dualread/rawfile"
	"github.com/nasa-jpl/dualread/server"
	"github.com/nasa-jpl/dualread/server/middleware/locker"
)

// clientErrs are the errors that mean the request, not the server, is at fault
var clientErrs = []error{
	linepair.ErrGeometryMismatch,
	linepair.ErrBufferTooSmall,
	linepair.ErrUnsupportedFormat,
	rawfile.ErrBadMagic,
	rawfile.ErrVersion,
	rawfile.ErrChecksum,
	rawfile.ErrTruncated,
	camera.ErrModeNotSettable,
	errBadImageFormat,
}

var errBadImageFormat = errors.New("image format must be one of fits, tiff, png, jpg")

// ModeT is the JSON form of a camera.Mode
type ModeT struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	BitDepth int    `json:"bitDepth,omitempty"`
}

// HTTPCamera wraps a camera.Camera in an HTTP interface
type HTTPCamera struct {
	Cam *camera.Camera

	// Recorder, if active, keeps a copy of every FITS file served by /image
	Recorder *imgrec.Recorder

	// Locker guards the routes; callers should install Locker.Check as middleware
	Locker *locker.Locker

	RouteTable server.RouteTable
}

// NewHTTPCamera returns a new HTTP wrapper around a camera.  rec may be nil.
func NewHTTPCamera(c *camera.Camera, rec *imgrec.Recorder) HTTPCamera {
	h := HTTPCamera{Cam: c, Recorder: rec, Locker: locker.New(), RouteTable: server.RouteTable{}}
	rt := h.RouteTable
	rt[server.MethodPath{Method: http.MethodGet, Path: "/image"}] = h.GetFrame
	rt[server.MethodPath{Method: http.MethodPost, Path: "/burst"}] = h.Burst
	rt[server.MethodPath{Method: http.MethodGet, Path: "/mode"}] = h.GetMode
	rt[server.MethodPath{Method: http.MethodPost, Path: "/mode"}] = h.SetMode
	rt[server.MethodPath{Method: http.MethodGet, Path: "/wire-formats"}] = WireFormats
	rt[server.MethodPath{Method: http.MethodPost, Path: "/decode"}] = h.Decode
	rt[server.MethodPath{Method: http.MethodGet, Path: "/stream"}] = h.Stream
	rt[server.MethodPath{Method: http.MethodGet, Path: "/session"}] = generichttp.GetString(func() (string, error) {
		return c.Session().String(), nil
	})
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(h)
	}
	locker.Inject(h, h.Locker)
	return h
}

// RT satisfies server.HTTPer
func (h HTTPCamera) RT() server.RouteTable {
	return h.RouteTable
}

// writeImage sends frame 0 of img in the requested format.  FITS files carry
// every frame and are also written to rec when it is active.
func writeImage(w http.ResponseWriter, format string, img camera.Image, cards []fitsio.Card, rec *imgrec.Recorder) {
	hdr := w.Header()
	var err error
	switch format {
	case "jpg", "jpeg":
		hdr.Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		err = jpeg.Encode(w, camera.Preview8(img, 0), nil)
	case "png":
		hdr.Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		err = png.Encode(w, camera.Preview8(img, 0))
	case "tiff", "tif":
		hdr.Set("Content-Type", "image/tiff")
		hdr.Set("Content-Disposition", "attachment; filename=image.tiff")
		w.WriteHeader(http.StatusOK)
		err = tiff.Encode(w, camera.Gray16(img, 0), &tiff.Options{Compression: tiff.Deflate})
	case "fits":
		var w2 io.Writer = w
		if rec.Active() {
			w2 = io.MultiWriter(w, rec)
			defer rec.Incr()
		}
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=image.fits")
		w.WriteHeader(http.StatusOK)
		err = camera.WriteFits(w2, cards, img)
	default:
		generichttp.WriteError(w, errors.Wrap(errBadImageFormat, format), clientErrs...)
		return
	}
	if err != nil {
		// headers are gone, all that is left is to cut the body short
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func imageFormat(r *http.Request, fallback string) (string, error) {
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = fallback
	}
	switch format {
	case "fits", "tiff", "tif", "png", "jpg", "jpeg":
		return format, nil
	}
	return "", errors.Wrap(errBadImageFormat, format)
}

// GetFrame takes a picture and returns it on a GET request.
//
// the image format may be specified in the fmt query parameter, one of
// fits, tiff, png, or jpg; default to jpg.  png and jpg are 8-bit previews,
// fits and tiff carry the full sample depth.
func (h HTTPCamera) GetFrame(w http.ResponseWriter, r *http.Request) {
	format, err := imageFormat(r, "jpg")
	if err != nil {
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	img, err := h.Cam.GetFrame(r.Context())
	if err != nil {
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	cards := append(h.Cam.CollectHeaderMetadata(), camera.ImageCards(img)...)
	writeImage(w, format, img, cards, h.Recorder)
}

// BurstT is the body of a burst request
type BurstT struct {
	FPS    float64 `json:"fps"`
	Frames int     `json:"frames"`
}

// Burst takes a burst of N frames at M fps and returns it as a fits image cube
func (h HTTPCamera) Burst(w http.ResponseWriter, r *http.Request) {
	t := BurstT{}
	if !generichttp.DecodeBody(w, r, &t) {
		return
	}
	if t.Frames < 1 {
		http.Error(w, "frames must be at least 1", http.StatusBadRequest)
		return
	}
	img, err := h.Cam.Burst(r.Context(), t.Frames, t.FPS)
	if err != nil {
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	cards := h.Cam.CollectHeaderMetadata()
	// mutate the header version because this is a burst
	cards[0].Value = cards[0].Value.(string) + "+burst"
	cards = append(cards, camera.ImageCards(img)...)
	cards = append(cards, fitsio.Card{Name: "FPS", Value: t.FPS, Comment: "requested frame rate"})
	writeImage(w, "fits", img, cards, nil)
}

// GetMode returns the acquisition mode as JSON
func (h HTTPCamera) GetMode(w http.ResponseWriter, r *http.Request) {
	m, err := h.Cam.Mode()
	if err != nil {
		if errors.Is(err, camera.ErrNoMode) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	mt := ModeT{Width: m.Geometry.Width, Height: m.Geometry.Height, Format: m.Format.String(), BitDepth: m.Format.BitDepth()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(mt)
}

// SetMode changes the acquisition mode from a JSON body {width, height, format}
func (h HTTPCamera) SetMode(w http.ResponseWriter, r *http.Request) {
	mt := ModeT{}
	if !generichttp.DecodeBody(w, r, &mt) {
		return
	}
	f, err := linepair.ParseWireFormat(mt.Format)
	if err != nil {
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	m := camera.Mode{Geometry: linepair.Geometry{Width: mt.Width, Height: mt.Height}, Format: f}
	if err := h.Cam.SetMode(m); err != nil {
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// WireFormats lists the wire formats, with the bit depth of each and whether
// it can be decoded
func WireFormats(w http.ResponseWriter, r *http.Request) {
	type formatT struct {
		Name      string `json:"name"`
		BitDepth  int    `json:"bitDepth"`
		Supported bool   `json:"supported"`
	}
	var out []formatT
	for _, f := range linepair.WireFormats() {
		_, err := f.Transform()
		out = append(out, formatT{Name: f.String(), BitDepth: f.BitDepth(), Supported: err == nil})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(out)
}

// Decode decodes a capture file posted as the request body and returns the
// image in the format given by the fmt query parameter, default fits
func (h HTTPCamera) Decode(w http.ResponseWriter, r *http.Request) {
	format, err := imageFormat(r, "fits")
	if err != nil {
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	defer r.Body.Close()
	f, err := rawfile.Read(io.LimitReader(r.Body, rawfile.MaxPayload+64))
	if err != nil {
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	mode := camera.Mode{Geometry: f.Geometry, Format: f.Format}
	n, err := linepair.FrameBytes(f.Geometry, f.Format)
	if err == nil && n != len(f.Data) {
		err = errors.Wrapf(linepair.ErrGeometryMismatch, "%d payload bytes, %s %s needs %d", len(f.Data), f.Geometry, f.Format, n)
	}
	if err != nil {
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	img := camera.Image{
		Pix:    make([]uint16, f.Geometry.Pixels()),
		Mode:   mode,
		Frames: 1,
		Time:   f.Time,
	}
	if err := h.Cam.Decode(camera.RawFrame{Mode: img.Mode, Data: f.Data, Time: f.Time}, img.Pix); err != nil {
		generichttp.WriteError(w, err, clientErrs...)
		return
	}
	cards := []fitsio.Card{{Name: "HDRVER", Value: camera.HeaderVersion + "+decode", Comment: "header version"}}
	cards = append(cards, camera.ModeCards(img.Mode)...)
	cards = append(cards, camera.ImageCards(img)...)
	writeImage(w, format, img, cards, nil)
}
