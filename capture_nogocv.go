//go:build !gocv

package main

import "fmt"

func newGoCVSource(SourceConfig) (FrameSource, string, error) {
	return nil, "", fmt.Errorf("gocv: not built in (rebuild with -tags gocv)")
}
