// Package logging configures slog and masks secrets before they reach a log line.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New builds a logger writing to w. format is "json" or "text"; level is
// debug, info, warn or error (unknown values fall back to info).
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// MaskSecret redacts a secret for logging, keeping the last four characters
// when the value is long enough that they do not give it away.
//
//	""           -> ""
//	"abc"        -> "****"
//	"EPP-9f3a7c" -> "****3a7c"
func MaskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) < 8 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// Secret returns a slog attribute whose value is masked
func Secret(key, value string) slog.Attr {
	return slog.String(key, MaskSecret(value))
}

// Discard returns a logger that drops everything, for tests and quiet CLIs
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
