package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	osc52 "github.com/aymanbagabas/go-osc52/v2"
)

// ErrClipboard is returned when text could not be placed on the clipboard.
var ErrClipboard = errors.New("clipboard write failed")

// Copier places text on the system clipboard.
type Copier interface {
	Copy(text string) error
}

// osc52Copier asks the terminal to set the clipboard with an OSC 52 escape.
type osc52Copier struct {
	w   io.Writer
	env func(string) string
}

func newOSC52Copier(w io.Writer) *osc52Copier {
	return &osc52Copier{w: w, env: os.Getenv}
}

func (c *osc52Copier) Copy(text string) error {
	if text == "" {
		return fmt.Errorf("%w: nothing to copy", ErrClipboard)
	}
	seq := osc52.New(text)
	switch {
	case c.env("TMUX") != "":
		seq = seq.Tmux()
	case strings.HasPrefix(c.env("TERM"), "screen"):
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(c.w); err != nil {
		return fmt.Errorf("%w: %v", ErrClipboard, err)
	}
	return nil
}
