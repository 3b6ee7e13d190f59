// Package logger provides structured logging setup for craftd.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/craftapp/craftd/internal/config"
)

// Async handler tuning. One worker keeps records in emission order.
const (
	asyncBufferSize = 1024
	asyncWorkers    = 1
)

// New creates a *slog.Logger from the given Logging config. Output is
// JSON to stderr with a "service" attribute on every record; stdout is
// reserved for the prompt stream. The returned Closer flushes buffered
// records in async mode and is a no-op otherwise.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, asyncBufferSize, asyncWorkers)
		handler = async
		closer = async
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
