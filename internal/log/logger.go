package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns the root logger for the process at the given level. An
// unrecognized level falls back to INFO. Components derive their own
// loggers with Logger.With("component", ...); the root is built once in
// main and passed down through constructors.
func New(level string) *slog.Logger {
	// stdout carries the MCP stdio transport, so logs must go to stderr.
	return newLogger(os.Stderr, level)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
