package camera

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/nasa-jpl/dualread/camera"
	"github.com/nasa-jpl/dualread/camera/sim"
	"github.com/nasa-jpl/dualread/imgrec"
	"github.com/nasa-jpl/dualread/linepair"
	"github.com/nasa-jpl/dualread/rawfile"
)

var simMode = camera.Mode{Geometry: linepair.Geometry{Width: 16, Height: 6}, Format: linepair.Packed12}

func setup(t *testing.T, rec *imgrec.Recorder) (http.Handler, HTTPCamera) {
	t.Helper()
	s, err := sim.New(simMode, sim.WithPattern("ramp"))
	require.NoError(t, err)
	h := NewHTTPCamera(camera.New(s), rec)
	mux := chi.NewRouter()
	mux.Use(h.Locker.Check)
	h.RT().Bind(mux)
	return mux, h
}

func call(h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewReader(body)))
	return w
}

func TestImagePNG(t *testing.T) {
	mux, _ := setup(t, nil)
	w := call(mux, http.MethodGet, "/image?fmt=png", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	im, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 6), im.Bounds())

	truth, _ := sim.Truth(simMode, "ramp", 0)
	g := im.(*image.Gray)
	for idx, v := range truth {
		if g.Pix[idx] != byte(v>>4) {
			t.Fatalf("pixel %d: expected %d got %d", idx, v>>4, g.Pix[idx])
		}
	}
}

func TestImageTIFFKeepsDepth(t *testing.T) {
	mux, _ := setup(t, nil)
	w := call(mux, http.MethodGet, "/image?fmt=tiff", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	im, err := tiff.Decode(w.Body)
	require.NoError(t, err)
	truth, _ := sim.Truth(simMode, "ramp", 0)
	for idx, v := range truth {
		x, y := idx%16, idx/16
		r, _, _, _ := im.At(x, y).RGBA()
		if uint16(r) != v {
			t.Fatalf("pixel (%d,%d): expected %d got %d", x, y, v, r)
		}
	}
}

func TestImageDefaultsToJPEG(t *testing.T) {
	mux, _ := setup(t, nil)
	w := call(mux, http.MethodGet, "/image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
}

func TestImageBadFormat(t *testing.T) {
	mux, _ := setup(t, nil)
	w := call(mux, http.MethodGet, "/image?fmt=bmp", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImageFITSRecorded(t *testing.T) {
	rec := &imgrec.Recorder{Root: t.TempDir(), Prefix: "img", Enabled: true}
	mux, _ := setup(t, rec)
	w := call(mux, http.MethodGet, "/image?fmt=fits", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/fits", w.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Last())

	w2 := call(mux, http.MethodGet, "/autowrite/last", nil)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, w.Body.Bytes(), w2.Body.Bytes())
}

func TestBurstCube(t *testing.T) {
	mux, _ := setup(t, nil)
	w := call(mux, http.MethodPost, "/burst", []byte(`{"frames": 3, "fps": 0}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	f, err := fitsio.Open(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	hdr := f.HDU(0).Header()
	assert.Equal(t, []int{16, 6, 3}, hdr.Axes())
	card := hdr.Get("HDRVER")
	require.NotNil(t, card)
	assert.Equal(t, camera.HeaderVersion+"+burst", card.Value)
}

func TestBurstBadRequests(t *testing.T) {
	mux, _ := setup(t, nil)
	assert.Equal(t, http.StatusBadRequest, call(mux, http.MethodPost, "/burst", []byte(`{"frames": 0}`)).Code)
	assert.Equal(t, http.StatusBadRequest, call(mux, http.MethodPost, "/burst", []byte(`frames`)).Code)
}

func TestMode(t *testing.T) {
	mux, h := setup(t, nil)
	w := call(mux, http.MethodGet, "/mode", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"width":16,"height":6,"format":"packed12","bitDepth":12}`, w.Body.String())

	w = call(mux, http.MethodPost, "/mode", []byte(`{"width":4,"height":2,"format":"direct16"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m, err := h.Cam.Mode()
	require.NoError(t, err)
	assert.Equal(t, linepair.Direct16, m.Format)

	for _, body := range []string{
		`{"width":4,"height":3,"format":"direct16"}`,
		`{"width":12,"height":2,"format":"packed12"}`,
		`{"width":4,"height":2,"format":"sqrt-lut"}`,
		`{"width":4,"height":2,"format":"yuv"}`,
	} {
		w = call(mux, http.MethodPost, "/mode", []byte(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestWireFormats(t *testing.T) {
	mux, _ := setup(t, nil)
	w := call(mux, http.MethodGet, "/wire-formats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[
		{"name":"direct16","bitDepth":16,"supported":true},
		{"name":"packed12","bitDepth":12,"supported":true},
		{"name":"sqrt-lut","bitDepth":12,"supported":false}
	]`, w.Body.String())
}

func captureFile(t *testing.T, f rawfile.Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, rawfile.Write(&buf, f))
	return buf.Bytes()
}

func TestDecodeCaptureFile(t *testing.T) {
	mux, _ := setup(t, nil)
	geo := linepair.Geometry{Width: 2, Height: 2}
	raw := make([]byte, 8)
	require.NoError(t, linepair.EncodeFrame([]uint16{0x0100, 0x0200, 0x0300, 0x0400}, geo, linepair.Direct16, raw))
	body := captureFile(t, rawfile.Frame{Geometry: geo, Format: linepair.Direct16, Data: raw})

	w := call(mux, http.MethodPost, "/decode?fmt=png", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	im, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, im.(*image.Gray).Pix)

	w = call(mux, http.MethodPost, "/decode", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/fits", w.Header().Get("Content-Type"))
}

func TestDecodeRejects(t *testing.T) {
	mux, _ := setup(t, nil)
	good := rawfile.Frame{Geometry: linepair.Geometry{Width: 8, Height: 2}, Format: linepair.Packed12, Data: make([]byte, 24)}

	corrupt := captureFile(t, good)
	corrupt[40] ^= 0xFF
	short := good
	short.Data = make([]byte, 12)
	odd := good
	odd.Geometry.Height = 3
	odd.Data = make([]byte, 36)
	huge := good
	huge.Geometry = linepair.Geometry{Width: math.MaxInt32 - 7, Height: math.MaxInt32 - 1}
	huge.Format = linepair.Direct16
	huge.Data = make([]byte, 4)

	cases := map[string][]byte{
		"corrupt":    corrupt,
		"short":      captureFile(t, short),
		"odd":        captureFile(t, odd),
		"huge":       captureFile(t, huge),
		"truncated":  captureFile(t, good)[:20],
		"not a file": []byte(strings.Repeat("x", 64)),
	}
	for name, body := range cases {
		w := call(mux, http.MethodPost, "/decode?fmt=png", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s: %s", name, w.Body.String())
	}
}

func TestLockBlocksAcquisition(t *testing.T) {
	mux, h := setup(t, nil)
	require.Equal(t, http.StatusOK, call(mux, http.MethodPost, "/lock", []byte(`{"bool":true}`)).Code)
	assert.True(t, h.Locker.Locked())
	assert.Equal(t, http.StatusLocked, call(mux, http.MethodGet, "/image", nil).Code)
	assert.Equal(t, http.StatusOK, call(mux, http.MethodGet, "/endpoints", nil).Code)
	require.Equal(t, http.StatusOK, call(mux, http.MethodPost, "/lock", []byte(`{"bool":false}`)).Code)
	assert.Equal(t, http.StatusOK, call(mux, http.MethodGet, "/image", nil).Code)
}

func TestEndpointsListed(t *testing.T) {
	mux, _ := setup(t, &imgrec.Recorder{})
	w := call(mux, http.MethodGet, "/endpoints", nil)
	var list []string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	for _, route := range []string{"GET /image", "POST /burst", "GET /stream", "POST /decode", "GET /autowrite/root", "POST /lock"} {
		assert.Contains(t, list, route)
	}
}

func TestStream(t *testing.T) {
	mux, _ := setup(t, nil)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?fps=30"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	for i := 0; i < 2; i++ {
		kind, msg, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, kind)
		im, err := png.Decode(bytes.NewReader(msg))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 16, 6), im.Bounds())
	}
}

func TestStreamBadFPS(t *testing.T) {
	mux, _ := setup(t, nil)
	for _, q := range []string{"0", "-1", "100", "fast", "NaN", "Inf", "1e1", "2.5fps"} {
		w := call(mux, http.MethodGet, "/stream?fps="+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}
