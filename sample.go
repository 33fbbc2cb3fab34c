package main

import (
	"errors"
	"fmt"
	"image"
)

// ErrOutOfBounds is returned when a sample window does not fit inside the frame.
var ErrOutOfBounds = errors.New("sample window out of bounds")

// SamplePoint is the centre of a square window of Size×Size pixels.
type SamplePoint struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Size int `json:"size"`
}

// Window returns the pixel rectangle averaged for p, relative to the frame origin.
// The window starts Size/2 pixels before the centre, so a Size of 1 covers (X, Y).
func (p SamplePoint) Window() image.Rectangle {
	x0 := p.X - p.Size/2
	y0 := p.Y - p.Size/2
	return image.Rect(x0, y0, x0+p.Size, y0+p.Size)
}

// SampleAverageColor averages the RGB channels over p's window using floor
// division. Alpha is ignored. Windows are never clamped.
func SampleAverageColor(frame *image.RGBA, p SamplePoint) (RGB, error) {
	if p.Size < 1 {
		return RGB{}, fmt.Errorf("window size %d at (%d,%d): %w", p.Size, p.X, p.Y, ErrOutOfBounds)
	}

	win := p.Window().Add(frame.Rect.Min)
	if !win.In(frame.Rect) {
		return RGB{}, fmt.Errorf("window %v not inside frame %v: %w", win, frame.Rect, ErrOutOfBounds)
	}

	var rSum, gSum, bSum uint64
	for y := win.Min.Y; y < win.Max.Y; y++ {
		off := frame.PixOffset(win.Min.X, y)
		for x := win.Min.X; x < win.Max.X; x++ {
			rSum += uint64(frame.Pix[off])
			gSum += uint64(frame.Pix[off+1])
			bSum += uint64(frame.Pix[off+2])
			off += 4
		}
	}

	n := uint64(p.Size * p.Size)
	return RGB{
		R: uint8(rSum / n),
		G: uint8(gSum / n),
		B: uint8(bSum / n),
	}, nil
}

// SampleAll samples every point in order. Result i belongs to points[i].
// The first failing point aborts the whole call.
func SampleAll(frame *image.RGBA, points []SamplePoint) ([]RGB, error) {
	colors := make([]RGB, len(points))
	for i, p := range points {
		c, err := SampleAverageColor(frame, p)
		if err != nil {
			return nil, fmt.Errorf("sample point %d: %w", i, err)
		}
		colors[i] = c
	}
	return colors, nil
}
