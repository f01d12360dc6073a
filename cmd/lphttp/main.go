package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/dualread/acquire"
	"github.com/nasa-jpl/dualread/camera"
	"github.com/nasa-jpl/dualread/camera/sim"
	"github.com/nasa-jpl/dualread/generichttp"
	hcam "github.com/nasa-jpl/dualread/generichttp/camera"
	"github.com/nasa-jpl/dualread/imgrec"
	"github.com/nasa-jpl/dualread/linepair"
	"github.com/nasa-jpl/dualread/metrics"
	"github.com/nasa-jpl/dualread/rawfile"
	"github.com/nasa-jpl/dualread/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like.  A .toml file of the same stem is
	// read instead if it exists.
	ConfigFileName = "lphttp.yml"
	k              = koanf.New(".")
)

type source struct {
	// Type is one of sim, playback, spool
	Type string `yaml:"Type"`

	// Width, Height, Format, FPS, Stride, and Pattern configure the simulator
	Width   int     `yaml:"Width"`
	Height  int     `yaml:"Height"`
	Format  string  `yaml:"Format"`
	FPS     float64 `yaml:"FPS"`
	Stride  int     `yaml:"Stride"`
	Pattern string  `yaml:"Pattern"`

	// Dir is the spool directory
	Dir string `yaml:"Dir"`

	// Files are the capture files to play back
	Files []string `yaml:"Files"`
}

type recorder struct {
	// Root is the root folder to write to
	Root string `yaml:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix"`

	// Enabled turns on recording of FITS images served by /image
	Enabled bool `yaml:"Enabled"`

	// Raw also keeps every acquired raw frame as a capture file under Root/raw
	Raw bool `yaml:"Raw"`
}

type config struct {
	Addr     string   `yaml:"Addr"`
	Root     string   `yaml:"Root"`
	Workers  int      `yaml:"Workers"`
	Metrics  bool     `yaml:"Metrics"`
	Source   source   `yaml:"Source"`
	Recorder recorder `yaml:"Recorder"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr:    ":8000",
		Root:    "/",
		Workers: 4,
		Metrics: true,
		Source: source{
			Type:    "sim",
			Width:   1024,
			Height:  1024,
			Format:  "packed12",
			FPS:     10,
			Pattern: "ramp",
		},
		Recorder: recorder{Prefix: "img"},
	}, "koanf"), nil)

	toml := strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)) + ".toml"
	if _, err := os.Stat(toml); err == nil {
		if err := k.Load(file.Provider(toml), util.TOML()); err != nil {
			log.Fatalf("error loading config: %v", err)
		}
		return
	}
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `lphttp serves a dual-half readout camera over HTTP.
Frames come off the wire as interleaved top/bottom line pairs
and are decoded into ordinary row-major images on request.

Usage:
	lphttp <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `lphttp is amenable to configuration via its .yml file, or a .toml file of the
same name.  For a primer on YAML, see https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.

Source.Type selects where frames come from:
	sim       a simulated sensor drawing Source.Pattern (ramp, checker, counter)
	          in Source.Width x Source.Height, wire format Source.Format
	          (direct16 or packed12) at Source.FPS.  Source.Stride, if larger
	          than a wire line, pads each line out to that many bytes.
	playback  loops over the capture files in Source.Files
	spool     decodes capture files as they appear in Source.Dir

Width must be a multiple of 8 for packed12, and Height must be even.

The HTTP routes are listed at <Root>/endpoints once the server is up.
Prometheus metrics are served at /metrics when Metrics is true.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("lphttp version %v\n", Version)
}

// buildSource opens the configured source.  The returned closer releases it.
func buildSource(cfg source) (camera.Source, func() error, error) {
	nop := func() error { return nil }
	switch strings.ToLower(cfg.Type) {
	case "sim", "":
		f, err := linepair.ParseWireFormat(cfg.Format)
		if err != nil {
			return nil, nop, err
		}
		m := camera.Mode{Geometry: linepair.Geometry{Width: cfg.Width, Height: cfg.Height}, Format: f}
		opts := []sim.Option{sim.WithFrameRate(cfg.FPS)}
		if cfg.Pattern != "" {
			opts = append(opts, sim.WithPattern(cfg.Pattern))
		}
		if cfg.Stride > 0 {
			lb, err := m.LineBytes()
			if err != nil {
				return nil, nop, err
			}
			if cfg.Stride < lb {
				return nil, nop, errors.Errorf("stride %d is shorter than a %d byte wire line", cfg.Stride, lb)
			}
			opts = append(opts, sim.WithPadding(cfg.Stride-lb))
		}
		s, err := sim.New(m, opts...)
		return s, nop, err
	case "playback":
		p, err := acquire.NewPlayback(cfg.Files...)
		return p, nop, err
	case "spool":
		s, err := acquire.NewSpool(cfg.Dir)
		if err != nil {
			return nil, nop, err
		}
		return s, s.Close, nil
	default:
		return nil, nop, errors.Errorf("unknown source type %q", cfg.Type)
	}
}

// rawTap saves every raw frame to rec as a capture file
func rawTap(rec *imgrec.Recorder) func(camera.RawFrame) {
	return func(rf camera.RawFrame) {
		lb, err := rf.Mode.LineBytes()
		if err != nil {
			return
		}
		data, err := camera.Unpad(rf.Data, rf.Stride, lb, rf.Mode.Geometry.Height)
		if err != nil {
			log.Printf("raw frame %d not recorded: %v\n", rf.Seq, err)
			return
		}
		_, err = rec.Save(func(w io.Writer) error {
			return rawfile.Write(w, rawfile.Frame{Geometry: rf.Mode.Geometry, Format: rf.Mode.Format, Time: rf.Time, Data: data})
		})
		if err != nil {
			log.Printf("raw frame %d not recorded: %v\n", rf.Seq, err)
		}
	}
}

func run() {
	cfg := config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		log.Fatal(err)
	}
	src, closeSrc, err := buildSource(cfg.Source)
	if err != nil {
		log.Fatal(err)
	}
	defer closeSrc()

	opts := []camera.Option{camera.WithWorkers(cfg.Workers)}
	if cfg.Recorder.Raw && cfg.Recorder.Root != "" {
		raw := &imgrec.Recorder{
			Root:    filepath.Join(cfg.Recorder.Root, "raw"),
			Prefix:  cfg.Recorder.Prefix,
			Ext:     rawfile.Ext,
			Enabled: true,
		}
		opts = append(opts, camera.WithTap(rawTap(raw)))
	}
	c := camera.New(src, opts...)
	log.Printf("camera session %s, %s source\n", c.Session(), cfg.Source.Type)

	args := cfg.Recorder
	r := &imgrec.Recorder{Root: args.Root, Prefix: args.Prefix, Enabled: args.Enabled}
	w := hcam.NewHTTPCamera(c, r)

	// clean up the submux string
	hndlrS := generichttp.SubMuxSanitize(cfg.Root)
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	if cfg.Metrics {
		root.Handle("/metrics", metrics.Handler())
	}
	mux := chi.NewRouter()
	mux.Use(w.Locker.Check)
	root.Mount(hndlrS, mux)
	w.RT().Bind(mux)

	srv := &http.Server{Addr: cfg.Addr, Handler: root}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shut)
	}()
	log.Println("now listening for requests at ", cfg.Addr+hndlrS)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
