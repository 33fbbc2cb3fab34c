//go:build gocv

package main

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// gocvSource reads frames through OpenCV. Build with -tags gocv.
type gocvSource struct {
	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
}

func newGoCVSource(cfg SourceConfig) (FrameSource, string, error) {
	var device interface{} = 0
	if cfg.Device != "" {
		if id, err := strconv.Atoi(cfg.Device); err == nil {
			device = id
		} else {
			device = cfg.Device
		}
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, "", fmt.Errorf("opening camera %v: %w", device, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	s := &gocvSource{cap: vc, mat: gocv.NewMat()}
	if !vc.Read(&s.mat) || s.mat.Empty() {
		s.Close()
		return nil, "", fmt.Errorf("camera %v returned no frame", device)
	}

	logger.Info("camera opened", "method", "GoCV", "device", device)
	return s, "GoCV", nil
}

func (s *gocvSource) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cap.Read(&s.mat) || s.mat.Empty() {
		return nil, fmt.Errorf("%w: camera returned no frame", ErrCaptureUnavailable)
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: converting frame: %v", ErrCaptureUnavailable, err)
	}
	return toPixelBuffer(img), nil
}

func (s *gocvSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mat.Close()
	return s.cap.Close()
}
