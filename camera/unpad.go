package camera

import (
	"math"

	"github.com/pkg/errors"
)

// Unpad strips padding bytes from a buffer whose rows are stride bytes apart
// but only lineBytes long.  A stride of 0 or lineBytes means there is no
// padding and buf is returned trimmed, without a copy.
func Unpad(buf []byte, stride, lineBytes, lines int) ([]byte, error) {
	if stride == 0 || stride == lineBytes {
		if len(buf) < lineBytes*lines {
			return nil, errors.Errorf("camera: buffer of %d bytes cannot hold %d lines of %d bytes", len(buf), lines, lineBytes)
		}
		return buf[:lineBytes*lines], nil
	}
	if stride < lineBytes {
		return nil, errors.Errorf("camera: stride %d shorter than line of %d bytes", stride, lineBytes)
	}
	if lines > 0 && stride > (math.MaxInt-lineBytes)/lines {
		return nil, errors.Errorf("camera: %d lines at stride %d overflow", lines, stride)
	}
	if lines > 0 && len(buf) < stride*(lines-1)+lineBytes {
		return nil, errors.Errorf("camera: buffer of %d bytes cannot hold %d lines at stride %d", len(buf), lines, stride)
	}
	out := make([]byte, lineBytes*lines)
	bidx := 0
	for row := 0; row < lines; row++ {
		copy(out[row*lineBytes:], buf[bidx:bidx+lineBytes])
		bidx += stride
	}
	return out, nil
}
