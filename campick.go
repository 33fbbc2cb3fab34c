package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
)

var version = "dev"

type options struct {
	configPath string
	layout     string
	window     int
	source     string
	device     string
	file       string
	once       bool
	pair       bool
	debug      bool
	version    bool

	set map[string]bool // flags given on the command line
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("campick", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.configPath, "config", "", "config file (default ~/.campick/config.json)")
	fs.StringVar(&o.layout, "layout", "", "sampling layout: center|center-avg|quincunx|five|five-fixed")
	fs.IntVar(&o.window, "window", 0, "sample window size in pixels, 0 = layout default")
	fs.StringVar(&o.source, "source", "", "frame source: auto|pipewire|ffmpeg|gocv|screen|file")
	fs.StringVar(&o.device, "device", "", "camera device (e.g. /dev/video2)")
	fs.StringVar(&o.file, "file", "", "pick colors from a still image instead of a camera")
	fs.BoolVar(&o.once, "once", false, "capture one frame, print colors as JSON and exit")
	fs.BoolVar(&o.pair, "pair", false, "pair with a Hue bridge and choose an entertainment area")
	fs.BoolVar(&o.debug, "debug", false, "log at debug level")
	fs.BoolVar(&o.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return &o, nil
}

// apply overrides cfg with the flags given on the command line.
func (o *options) apply(cfg *Config) {
	if o.set["layout"] {
		cfg.Layout = o.layout
	}
	if o.set["window"] {
		cfg.Window = o.window
	}
	if o.set["source"] {
		cfg.Source.Kind = o.source
	}
	if o.set["device"] {
		cfg.Source.Device = o.device
	}
	if o.set["file"] {
		cfg.Source.Kind = "file"
		cfg.Source.Path = o.file
	}
	if o.debug {
		cfg.LogLevel = "debug"
	}
}

// pickColors captures one frame and samples it with layout.
func pickColors(ctx context.Context, src FrameSource, layout Layout) ([]RGB, error) {
	frame, err := src.Capture(ctx)
	if err != nil {
		return nil, err
	}
	b := frame.Bounds()
	return SampleAll(frame, layout.Points(b.Dx(), b.Dy()))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if opts.version {
		fmt.Fprintln(stdout, "campick", version)
		return 0
	}

	path := opts.configPath
	if path == "" {
		if path, err = ConfigPath(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: invalid config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case opts.pair:
		initLogger(stderr, cfg.LogLevel)
		if err := runPair(ctx, cfg.Hue, path, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0

	case opts.once:
		initLogger(stderr, cfg.LogLevel)
		if err := runOnce(ctx, cfg, stdout); err != nil {
			logger.Error("pick failed", "err", err)
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	logFile, err := openLogFile(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer logFile.Close()
	initLogger(logFile, cfg.LogLevel)

	if err := runTUI(ctx, cfg, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runOnce prints the colors of a single frame as a JSON array of records.
func runOnce(ctx context.Context, cfg *Config, out io.Writer) error {
	layout, err := cfg.NewLayout()
	if err != nil {
		return err
	}
	src, method, err := NewFrameSource(ctx, cfg.Source)
	if err != nil {
		return err
	}
	defer src.Close()
	logger.Debug("frame source ready", "method", method)

	colors, err := pickColors(ctx, src, layout)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(Records(colors))
}

func runTUI(ctx context.Context, cfg *Config, term io.Writer) error {
	layout, err := cfg.NewLayout()
	if err != nil {
		return err
	}

	var sink colorSink
	if cfg.Hue.Enabled {
		hue, err := openHueSession(ctx, cfg.Hue)
		if err != nil {
			logger.Warn("hue mirror disabled", "err", err)
		} else {
			defer func() {
				if err := hue.Close(); err != nil {
					logger.Warn("stopping hue streaming", "err", err)
				}
			}()
			sink = hue
		}
	}

	guard := newSourceGuard(ctx)
	defer func() {
		if err := guard.Close(); err != nil {
			logger.Debug("closing frame source", "err", err)
		}
	}()
	open := func(context.Context) (FrameSource, string, error) {
		return guard.Open(func(ctx context.Context) (FrameSource, string, error) {
			return NewFrameSource(ctx, cfg.Source)
		})
	}
	m := newModel(cfg, layout, open, newOSC52Copier(term), sink)

	_, err = tea.NewProgram(m, tea.WithContext(ctx)).Run()
	return err
}

// openLogFile opens path for appending, defaulting to campick.log in the
// data directory.
func openLogFile(path string) (*os.File, error) {
	if path == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "campick.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
