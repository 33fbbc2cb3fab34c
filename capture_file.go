package main

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// fileSource serves a still image as if it were a camera. The image is
// decoded once; each capture returns a fresh copy.
type fileSource struct {
	path  string
	frame *image.RGBA
}

func newFileSource(path string) (FrameSource, string, error) {
	if path == "" {
		return nil, "", fmt.Errorf("file source needs a path")
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", path, err)
	}
	logger.Info("still image opened", "path", path, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return &fileSource{path: path, frame: toPixelBuffer(img)}, "File", nil
}

func (s *fileSource) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	return toPixelBuffer(s.frame), nil
}

func (s *fileSource) Close() error { return nil }
