package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDecode(t *testing.T) {
	ok0 := testutil.ToFloat64(FramesDecoded.WithLabelValues("packed12"))
	bad0 := testutil.ToFloat64(DecodeErrors.WithLabelValues("packed12"))

	ObserveDecode("packed12", time.Millisecond, nil)
	ObserveDecode("packed12", time.Millisecond, nil)
	ObserveDecode("packed12", 0, errors.New("geometry mismatch"))

	if got := testutil.ToFloat64(FramesDecoded.WithLabelValues("packed12")) - ok0; got != 2 {
		t.Errorf("expected 2 decoded frames, got %v", got)
	}
	if got := testutil.ToFloat64(DecodeErrors.WithLabelValues("packed12")) - bad0; got != 1 {
		t.Errorf("expected 1 decode error, got %v", got)
	}
}
