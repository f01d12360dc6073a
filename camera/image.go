package camera

import (
	"image"
)

// Gray16 wraps frame n of img as an image.Gray16.  The samples are copied
// big-endian, as image.Gray16 requires.
func Gray16(img Image, n int) *image.Gray16 {
	w, h := img.Width(), img.Height()
	out := image.NewGray16(image.Rect(0, 0, w, h))
	for idx, v := range img.Frame(n) {
		out.Pix[2*idx] = byte(v >> 8)
		out.Pix[2*idx+1] = byte(v)
	}
	return out
}

// Preview8 scales frame n of img to 8 bits for display.  The shift is taken
// from the wire format's bit depth, so a 12-bit frame fills the full range.
func Preview8(img Image, n int) *image.Gray {
	w, h := img.Width(), img.Height()
	shift := uint(img.Mode.Format.BitDepth() - 8)
	out := image.NewGray(image.Rect(0, 0, w, h))
	for idx, v := range img.Frame(n) {
		out.Pix[idx] = byte(v >> shift)
	}
	return out
}
