package main

import (
	"io"
	"log/slog"
	"os"
)

// setupLogger returns the process logger. level accepts slog level names
// ("debug", "warn", "error+2") and falls back to info. format "text"
// selects logfmt-style output, anything else JSON. Debug logging adds
// source positions.
func setupLogger(w io.Writer, level, format, service string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h).With(
		slog.Group("process", "app", appName, "version", Version, "pid", os.Getpid()),
		"service", service,
	)
}
