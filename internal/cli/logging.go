package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"
)

// logLevel maps the configured level name. --debug always wins.
func logLevel(name string, debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(name) {
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

// initLogging installs the default logger. "json" writes one object per line
// to w; "text" (or empty) uses the colored console handler.
func initLogging(w io.Writer, format string, level slog.Level) error {
	switch strings.ToLower(format) {
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
	case "", "text":
		stylelog.InitDefault(&tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("unknown log format %q (want json or text)", format)
	}
	return nil
}
