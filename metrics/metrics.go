// Package metrics exports decode counters for prometheus
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dualread_frames_decoded_total",
		Help: "Total number of frames decoded, by wire format",
	}, []string{"format"})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dualread_decode_errors_total",
		Help: "Total number of frames rejected by the decoder, by wire format",
	}, []string{"format"})
	DecodeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dualread_decode_seconds",
		Help:    "Wall time spent decoding one frame",
		Buckets: prometheus.ExponentialBuckets(50e-6, 2, 14),
	}, []string{"format"})
	FramesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dualread_frames_recorded_total",
		Help: "Total number of frames written to disk by the recorder",
	})
)

// ObserveDecode records the outcome of one decode call
func ObserveDecode(format string, took time.Duration, err error) {
	if err != nil {
		DecodeErrors.WithLabelValues(format).Inc()
		return
	}
	FramesDecoded.WithLabelValues(format).Inc()
	DecodeSeconds.WithLabelValues(format).Observe(took.Seconds())
}

// Handler should usually be mounted at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
