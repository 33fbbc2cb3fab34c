package main

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// screenSource grabs display 0 on every capture.
type screenSource struct{}

func newScreenSource() (FrameSource, string, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, "", fmt.Errorf("no active displays found")
	}
	return screenSource{}, "Screen", nil
}

func (screenSource) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("%w: no active displays", ErrCaptureUnavailable)
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(0))
	if err != nil {
		return nil, fmt.Errorf("%w: capturing screen: %v", ErrCaptureUnavailable, err)
	}
	if img.Rect.Min != (image.Point{}) {
		return toPixelBuffer(img), nil
	}
	return img, nil
}

func (screenSource) Close() error { return nil }
