// lpdecode converts capture files of dual-half readout frames into FITS,
// TIFF, or PNG images.
//
// Usage:
//
//	lpdecode [flags] file.lpr...
//	lpdecode [flags] watch DIR
//
// In watch mode every capture file that appears in DIR is decoded until
// lpdecode is interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/dualread/acquire"
	"github.com/nasa-jpl/dualread/camera"
)

var (
	format  = flag.String("fmt", "fits", "output format: fits, tiff, or png")
	outdir  = flag.String("o", "", "output directory, default next to each input")
	workers = flag.Int("workers", 4, "goroutines per frame")
	quiet   = flag.Bool("q", false, "no spinner")
)

func newSpinner() (*yacspin.Spinner, error) {
	cfg := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " lpdecode",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	}
	if *quiet {
		cfg.Writer = io.Discard
	}
	return yacspin.New(cfg)
}

func convert(c *camera.Camera, spin *yacspin.Spinner, files []string) error {
	var failed int
	for i, in := range files {
		spin.Message(fmt.Sprintf("%d/%d %s", i+1, len(files), filepath.Base(in)))
		if _, err := decodeFile(c, in, *outdir, *format); err != nil {
			failed++
			log.Println(err)
		}
	}
	if failed > 0 {
		spin.StopFailMessage(fmt.Sprintf("%d of %d files failed", failed, len(files)))
		spin.StopFail()
		return errors.Errorf("%d files failed", failed)
	}
	spin.StopMessage(fmt.Sprintf("decoded %d files", len(files)))
	return spin.Stop()
}

func watch(c *camera.Camera, spin *yacspin.Spinner, dir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := *outdir
	if out == "" {
		out = dir
	}
	spin.Message("waiting for frames in " + dir)
	n := 0
	for {
		img, err := c.GetFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Println(err)
			continue
		}
		path := filepath.Join(out, fmt.Sprintf("frame%06d%s", img.Seq, extensions[*format]))
		if err := save(path, *format, img, headerCards(img)); err != nil {
			log.Println(err)
			continue
		}
		n++
		spin.Message(fmt.Sprintf("%d frames, last %s", n, filepath.Base(path)))
	}
	spin.StopMessage(fmt.Sprintf("decoded %d frames", n))
	return spin.Stop()
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: lpdecode [flags] file.lpr... | lpdecode [flags] watch DIR")
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if _, ok := extensions[*format]; !ok {
		log.Fatalf("unknown output format %q", *format)
	}

	spin, err := newSpinner()
	if err != nil {
		log.Fatal(err)
	}
	if err := spin.Start(); err != nil {
		log.Fatal(err)
	}

	if args[0] == "watch" {
		if len(args) != 2 {
			log.Fatal("watch takes exactly one directory")
		}
		spool, err := acquire.NewSpool(args[1])
		if err != nil {
			spin.StopFail()
			log.Fatal(err)
		}
		defer spool.Close()
		err = watch(camera.New(spool, camera.WithWorkers(*workers)), spin, args[1])
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	// files do not come from a live source; the camera is only the decoder
	c := camera.New(nil, camera.WithWorkers(*workers))
	if err := convert(c, spin, args); err != nil {
		os.Exit(1)
	}
}
