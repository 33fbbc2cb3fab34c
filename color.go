package main

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// RGB holds an 8-bit color value.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex returns the color as #rrggbb, lowercase.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) String() string {
	return c.Hex()
}

// RGBText returns the color in CSS functional notation.
func (c RGB) RGBText() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// ParseHex decodes "#rrggbb" or "#rgb" into an RGB.
func ParseHex(s string) (RGB, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return RGB{}, fmt.Errorf("parsing color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// ColorRecord is the serialized form of one sampled color.
type ColorRecord struct {
	Hex string `json:"hex"`
	RGB RGB    `json:"rgb"`
}

// Records converts sampled colors into records, preserving order.
func Records(colors []RGB) []ColorRecord {
	out := make([]ColorRecord, len(colors))
	for i, c := range colors {
		out[i] = ColorRecord{Hex: c.Hex(), RGB: c}
	}
	return out
}

// formatColor renders c in the named clipboard representation.
func formatColor(c RGB, format string) string {
	if format == "rgb" {
		return c.RGBText()
	}
	return c.Hex()
}
