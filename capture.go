package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// firstFrameTimeout bounds how long a streaming source may take to deliver
// its first frame when opened.
const firstFrameTimeout = 5 * time.Second

// ErrCaptureUnavailable is returned when no frame can be obtained.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// FrameSource produces still frames on demand. Every returned frame is a
// private copy the caller may keep.
type FrameSource interface {
	Capture(ctx context.Context) (*image.RGBA, error)
	Close() error
}

// NewFrameSource opens the source named by cfg.Kind. For "auto" it tries
// PipeWire → FFmpeg → GoCV and returns the first that works, along with a
// short name of the method used.
func NewFrameSource(ctx context.Context, cfg SourceConfig) (FrameSource, string, error) {
	switch cfg.Kind {
	case "pipewire":
		return newPipeWireSource(ctx, cfg)
	case "ffmpeg":
		return newFFmpegSource(ctx, cfg)
	case "gocv":
		return newGoCVSource(cfg)
	case "screen":
		return newScreenSource()
	case "file":
		return newFileSource(cfg.Path)
	case "", "auto":
	default:
		return nil, "", fmt.Errorf("unknown source kind %q", cfg.Kind)
	}

	var errs []error
	openers := []func() (FrameSource, string, error){
		func() (FrameSource, string, error) { return newPipeWireSource(ctx, cfg) },
		func() (FrameSource, string, error) { return newFFmpegSource(ctx, cfg) },
		func() (FrameSource, string, error) { return newGoCVSource(cfg) },
	}
	for _, open := range openers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		src, method, err := open()
		if err == nil {
			return src, method, nil
		}
		logger.Debug("frame source unavailable", "err", err)
		errs = append(errs, err)
	}
	return nil, "", fmt.Errorf("%w: no camera source could be opened: %w", ErrCaptureUnavailable, errors.Join(errs...))
}

// rawFrameStream keeps the most recent RGB24 frame read from a child process.
type rawFrameStream struct {
	width, height int

	done  chan struct{}
	ready chan struct{} // closed when first frame is available

	mu    sync.Mutex
	frame []byte
}

func newRawFrameStream(width, height int) *rawFrameStream {
	return &rawFrameStream{
		width:  width,
		height: height,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
}

func (s *rawFrameStream) frameSize() int {
	return s.width * s.height * 3
}

// run reads frames until r fails. It closes done on return.
func (s *rawFrameStream) run(r io.Reader) {
	defer close(s.done)
	buf := make([]byte, s.frameSize())
	first := true
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			logger.Debug("frame stream ended", "err", err)
			return
		}
		s.mu.Lock()
		if s.frame == nil {
			s.frame = make([]byte, len(buf))
		}
		copy(s.frame, buf)
		s.mu.Unlock()
		if first {
			close(s.ready)
			first = false
		}
	}
}

// waitFirst blocks until the first frame arrives, the stream ends, ctx is
// done, or timeout.
func (s *rawFrameStream) waitFirst(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return fmt.Errorf("stream ended before first frame")
	case <-ctx.Done():
		return fmt.Errorf("waiting for first frame: %w", ctx.Err())
	case <-timer.C:
		return fmt.Errorf("timed out waiting for first frame")
	}
}

// snapshot waits for a frame and returns a copy of the latest one.
func (s *rawFrameStream) snapshot(ctx context.Context) (*image.RGBA, error) {
	select {
	case <-s.ready:
	case <-s.done:
		return nil, fmt.Errorf("%w: stream closed before first frame", ErrCaptureUnavailable)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, ctx.Err())
	}
	select {
	case <-s.done:
		return nil, fmt.Errorf("%w: stream closed", ErrCaptureUnavailable)
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, fmt.Errorf("%w: no frame captured yet", ErrCaptureUnavailable)
	}
	return rgb24ToRGBA(s.frame, s.width, s.height), nil
}

// startFrameProcess runs a child that writes RGB24 frames to stdout and
// starts reading them. The returned wait func must be called after done closes.
func startFrameProcess(ctx context.Context, width, height int, name string, args []string, extra []*os.File) (*rawFrameStream, func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.ExtraFiles = extra

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%s stdout pipe: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting %s: %w", name, err)
	}

	stream := newRawFrameStream(width, height)
	go stream.run(stdout)
	return stream, cmd.Wait, nil
}

// rgb24ToRGBA expands a packed RGB24 buffer into an opaque RGBA frame.
func rgb24ToRGBA(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	pixels := width * height
	for i := 0; i < pixels; i++ {
		src := i * 3
		dst := i * 4
		img.Pix[dst] = buf[src]
		img.Pix[dst+1] = buf[src+1]
		img.Pix[dst+2] = buf[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img
}

// toPixelBuffer copies any image into a new RGBA frame anchored at (0,0).
func toPixelBuffer(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// hasExecutable reports whether the named program is on PATH.
func hasExecutable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// sourceGuard owns the source opened for the TUI. Close releases it even if
// the program exited before the source was handed to the model, and closes
// any source whose opening finishes afterwards.
type sourceGuard struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	src    FrameSource
	closed bool
}

func newSourceGuard(parent context.Context) *sourceGuard {
	ctx, cancel := context.WithCancel(parent)
	return &sourceGuard{ctx: ctx, cancel: cancel}
}

// Open calls open with the guard's context and records the result.
func (g *sourceGuard) Open(open func(ctx context.Context) (FrameSource, string, error)) (FrameSource, string, error) {
	src, method, err := open(g.ctx)
	if err != nil {
		return nil, "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		src.Close()
		return nil, "", fmt.Errorf("%w: closed while opening", ErrCaptureUnavailable)
	}
	g.src = src
	return src, method, nil
}

// Close aborts an open in progress and closes the recorded source.
func (g *sourceGuard) Close() error {
	g.cancel()

	g.mu.Lock()
	src := g.src
	g.src = nil
	g.closed = true
	g.mu.Unlock()

	if src == nil {
		return nil
	}
	return src.Close()
}
