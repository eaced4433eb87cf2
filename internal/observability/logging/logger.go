// Package logging builds the process logger every component derives from.
// Components attach themselves with logger.With("component", name); the
// service attribute is set once here.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger tagged with the service name, writing to w
// (stdout when nil).
func New(service, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: Level(level)})
	return slog.New(handler).With("service", service)
}

// Level maps the configured log level string onto a slog level. Unknown
// values fall back to info so a typo in LOG_LEVEL never silences the process.
func Level(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
