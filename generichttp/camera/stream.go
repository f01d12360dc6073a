package camera

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/dualread/camera"
	ilog "github.com/nasa-jpl/dualread/internal/logging"
	"github.com/nasa-jpl/dualread/util"
)

const (
	// DefaultStreamFPS is the preview rate when the client does not ask for one
	DefaultStreamFPS = 5

	// MaxStreamFPS caps the preview rate
	MaxStreamFPS = 30

	writeTimeout = 10 * time.Second
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(req *http.Request) bool {
			return true
		},
	}

	streamLog = ilog.NewLogger("stream")
)

// Stream upgrades to a websocket and sends 8-bit PNG previews as binary
// messages at up to fps frames per second, until the client goes away.
// Each preview is a fresh acquisition.
func (h HTTPCamera) Stream(w http.ResponseWriter, r *http.Request) {
	fps := float64(DefaultStreamFPS)
	if s := r.URL.Query().Get("fps"); s != "" {
		var err error
		if !util.AllElementsNumbers(s) {
			http.Error(w, "fps must be a number in (0, 30]", http.StatusBadRequest)
			return
		}
		fps, err = strconv.ParseFloat(s, 64)
		if err != nil || fps <= 0 || fps > MaxStreamFPS {
			http.Error(w, "fps must be a number in (0, 30]", http.StatusBadRequest)
			return
		}
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		streamLog.Warnf("couldn't make websocket: %v", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// the client never sends anything meaningful; a read error means it left
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	streamLog.Infof("preview stream to %s at %g fps", r.RemoteAddr, fps)
	lim := rate.NewLimiter(rate.Limit(fps), 1)
	var buf bytes.Buffer
	for {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		img, err := h.Cam.GetFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				streamLog.Warnf("stream acquisition: %v", err)
				msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "acquisition failed")
				ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			}
			return
		}
		buf.Reset()
		if err := png.Encode(&buf, camera.Preview8(img, 0)); err != nil {
			streamLog.Errorf("png encode: %v", err)
			return
		}
		if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
			return
		}
	}
}
