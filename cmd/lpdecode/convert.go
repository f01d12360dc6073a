package main

import (
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"

	"github.com/nasa-jpl/dualread/camera"
	"github.com/nasa-jpl/dualread/linepair"
	"github.com/nasa-jpl/dualread/rawfile"
)

var extensions = map[string]string{
	"fits": ".fits",
	"tiff": ".tiff",
	"png":  ".png",
}

// outputPath maps in.lpr to outdir/in.<ext>, or next to the input if outdir is empty
func outputPath(in, outdir, format string) string {
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + extensions[format]
	if outdir == "" {
		outdir = filepath.Dir(in)
	}
	return filepath.Join(outdir, base)
}

// save writes img to path as format.  png is an 8-bit preview; fits and tiff
// keep every bit.
func save(path, format string, img camera.Image, cards []fitsio.Card) error {
	fid, err := os.Create(path)
	if err != nil {
		return err
	}
	switch format {
	case "fits":
		err = camera.WriteFits(fid, cards, img)
	case "tiff":
		err = tiff.Encode(fid, camera.Gray16(img, 0), &tiff.Options{Compression: tiff.Deflate})
	case "png":
		err = png.Encode(fid, camera.Preview8(img, 0))
	default:
		err = errors.Errorf("unknown output format %q", format)
	}
	if cerr := fid.Close(); err == nil {
		err = cerr
	}
	return err
}

// decodeFile decodes one capture file with c and writes the result
func decodeFile(c *camera.Camera, in, outdir, format string) (string, error) {
	f, err := rawfile.ReadFile(in)
	if err != nil {
		return "", err
	}
	img, err := decodeCapture(c, f)
	if err != nil {
		return "", errors.Wrap(err, in)
	}
	out := outputPath(in, outdir, format)
	return out, save(out, format, img, headerCards(img))
}

func decodeCapture(c *camera.Camera, f rawfile.Frame) (camera.Image, error) {
	m := camera.Mode{Geometry: f.Geometry, Format: f.Format}
	n, err := linepair.FrameBytes(f.Geometry, f.Format)
	if err != nil {
		return camera.Image{}, err
	}
	if n != len(f.Data) {
		return camera.Image{}, errors.Wrapf(linepair.ErrGeometryMismatch, "%d payload bytes, %s %s needs %d", len(f.Data), f.Geometry, f.Format, n)
	}
	img := camera.Image{Pix: make([]uint16, f.Geometry.Pixels()), Mode: m, Frames: 1, Time: f.Time}
	err = c.Decode(camera.RawFrame{Mode: m, Data: f.Data, Time: f.Time}, img.Pix)
	return img, err
}

func headerCards(img camera.Image) []fitsio.Card {
	cards := []fitsio.Card{{Name: "HDRVER", Value: camera.HeaderVersion + "+lpdecode", Comment: "header version"}}
	cards = append(cards, camera.ModeCards(img.Mode)...)
	return append(cards, camera.ImageCards(img)...)
}
