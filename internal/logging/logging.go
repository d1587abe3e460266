// Package logging builds the process-wide slog.Logger shared by every
// component. Components derive child loggers with
// logger.With("component", name).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler New builds.
type Options struct {
	// Level is one of debug, info, warn, error (case-insensitive).
	// Unrecognized or empty values fall back to info.
	Level string
	// Format is "text" or "json". Anything else means text.
	Format string
	// Writer defaults to stderr; stdout is reserved for command output.
	Writer io.Writer
}

// New creates a configured slog.Logger.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(w, hopts)
	} else {
		handler = slog.NewTextHandler(w, hopts)
	}
	return slog.New(handler)
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
