package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// logger is the process-wide structured logger. It discards output until
// initLogger is called.
var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// parseLevel maps "debug", "warn" and "error" to slog levels; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initLogger points logger at w. CAMPICK_LOG_FORMAT=json selects JSON output.
func initLogger(w io.Writer, level string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if os.Getenv("CAMPICK_LOG_FORMAT") == "json" {
		logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(w, opts))
	}
	slog.SetDefault(logger)
}
