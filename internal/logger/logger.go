package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures the process logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Format is "text" or "json".
	Format string
	// File, when set, receives a JSON copy of every record in addition
	// to stderr.
	File io.Writer
}

// New builds a slog.Logger according to opts. When a file writer is
// supplied the logger fans out to both destinations.
func New(opts Options) *slog.Logger {
	level := parseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}

	var stderr slog.Handler
	if opts.Format == "json" {
		stderr = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		stderr = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	if opts.File == nil {
		return slog.New(stderr)
	}
	return slog.New(slogmulti.Fanout(
		stderr,
		slog.NewJSONHandler(opts.File, handlerOpts),
	))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
