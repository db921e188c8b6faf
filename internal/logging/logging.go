// Package logging builds the slog logger used for diagnostics. User-facing
// command output does not go through it.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const DefaultLevel = "info"

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", DefaultLevel:
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (use debug, info, warn or error)", raw)
	}
}

// New returns a text logger writing to w. A nil writer discards everything.
func New(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		return Discard()
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
