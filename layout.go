package main

import (
	"errors"
	"fmt"
	"image"
	"sort"
)

// ErrUnknownLayout is returned by NewLayout for names it does not know.
var ErrUnknownLayout = errors.New("unknown layout")

// defaultReference is the frame size requested from cameras. The five-fixed
// layout places its points against it.
var defaultReference = image.Pt(1280, 720)

// Layout decides where a frame is sampled. Points must be a pure function of
// the frame size.
type Layout interface {
	Name() string
	Points(width, height int) []SamplePoint
}

type centerLayout struct {
	name string
	size int
}

func (l centerLayout) Name() string { return l.name }

func (l centerLayout) Points(width, height int) []SamplePoint {
	return []SamplePoint{{X: width / 2, Y: height / 2, Size: l.size}}
}

// quincunxLayout samples the centre and four points offset diagonally by half
// the window size.
type quincunxLayout struct {
	size int
}

func (quincunxLayout) Name() string { return "quincunx" }

func (l quincunxLayout) Points(width, height int) []SamplePoint {
	cx, cy := width/2, height/2
	d := l.size / 2
	return []SamplePoint{
		{X: cx, Y: cy, Size: l.size},
		{X: cx - d, Y: cy - d, Size: l.size},
		{X: cx + d, Y: cy - d, Size: l.size},
		{X: cx - d, Y: cy + d, Size: l.size},
		{X: cx + d, Y: cy + d, Size: l.size},
	}
}

// fivePointLayout spreads five points over a 6×6 grid of the frame. With a
// non-zero ref the grid is computed from ref instead of the frame.
type fivePointLayout struct {
	size int
	ref  image.Point
}

func (l fivePointLayout) Name() string {
	if l.ref != (image.Point{}) {
		return "five-fixed"
	}
	return "five"
}

func (l fivePointLayout) Points(width, height int) []SamplePoint {
	if l.ref != (image.Point{}) {
		width, height = l.ref.X, l.ref.Y
	}
	sx, sy := width/6, height/6
	return []SamplePoint{
		{X: sx, Y: sy, Size: l.size},
		{X: 2 * sx, Y: 4 * sy, Size: l.size},
		{X: 4 * sx, Y: 4 * sy, Size: l.size},
		{X: 5 * sx, Y: sy, Size: l.size},
		{X: 3 * sx, Y: 2 * sy, Size: l.size},
	}
}

var layoutDefaults = map[string]int{
	"center":     1,
	"center-avg": 10,
	"quincunx":   10,
	"five":       10,
	"five-fixed": 10,
}

// LayoutNames lists the accepted layout names, sorted.
func LayoutNames() []string {
	names := make([]string, 0, len(layoutDefaults))
	for n := range layoutDefaults {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewLayout builds the named layout. A size of 0 keeps the layout's default
// window size; ref is only used by five-fixed and defaults to 1280×720.
func NewLayout(name string, size int, ref image.Point) (Layout, error) {
	def, ok := layoutDefaults[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownLayout, name, LayoutNames())
	}
	if size < 0 {
		return nil, fmt.Errorf("layout %s: window size %d must not be negative", name, size)
	}
	if size == 0 {
		size = def
	}

	switch name {
	case "center", "center-avg":
		return centerLayout{name: name, size: size}, nil
	case "quincunx":
		return quincunxLayout{size: size}, nil
	case "five":
		return fivePointLayout{size: size}, nil
	default:
		if ref.X <= 0 || ref.Y <= 0 {
			ref = defaultReference
		}
		return fivePointLayout{size: size, ref: ref}, nil
	}
}
