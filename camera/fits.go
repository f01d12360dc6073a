package camera

import (
	"io"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
)

// WriteFits streams img to w as a 16-bit FITS file.  A burst is written as a
// cube with the frame index on the third axis.
func WriteFits(w io.Writer, metadata []fitsio.Card, img Image) error {
	width, height, nframes := img.Width(), img.Height(), img.Frames
	if nframes < 1 {
		nframes = 1
	}
	if len(img.Pix) != width*height*nframes {
		return errors.Errorf("camera: %d samples do not fill %d frames of %dx%d", len(img.Pix), nframes, width, height)
	}
	cards := make([]fitsio.Card, 0, len(metadata)+2)
	cards = append(cards, metadata...)
	cards = append(cards, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{width, height}
	if nframes > 1 {
		dims = append(dims, nframes)
	}
	im := fitsio.NewImage(16, dims)
	defer im.Close()
	err = im.Header().Append(cards...)
	if err != nil {
		return err
	}

	// FITS has no unsigned 16-bit type, shift into int16 and let BZERO undo it
	ints := make([]int16, len(img.Pix))
	for idx, v := range img.Pix {
		ints[idx] = int16(int32(v) - 32768)
	}
	err = im.Write(ints)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
