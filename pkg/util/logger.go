package util

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Development gets human-readable
// debug output; every other environment gets JSON at info level.
func NewLogger(env, component string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "development" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("component", component)
}

// DiscardLogger returns a logger that drops everything below error level.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}
