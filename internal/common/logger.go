package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
)

// Fields are structured key/value pairs attached to a log record.
type Fields map[string]any

// attrs renders fields in key order so repeated runs log identically.
func (f Fields) attrs(extra ...slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(f)+len(extra))
	out = append(out, extra...)
	for _, k := range slices.Sorted(maps.Keys(f)) {
		out = append(out, slog.Any(k, f[k]))
	}
	return out
}

// ParseLevel maps a configured level name onto a slog level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
}

func newHandler(w io.Writer, level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "", "console", "text":
		return slog.NewTextHandler(w, opts), nil
	}
	return nil, fmt.Errorf("invalid log format: %s", format)
}

// SetupLogger installs the process-wide logger. Output goes to stderr so it
// never mixes with command output.
func SetupLogger(level slog.Level, format string) error {
	handler, err := newHandler(os.Stderr, level, format)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func LogError(err error, msg string, fields Fields) {
	slog.LogAttrs(context.Background(), slog.LevelError, msg, fields.attrs(slog.Any("error", err))...)
}

func LogInfo(msg string, fields Fields) {
	slog.LogAttrs(context.Background(), slog.LevelInfo, msg, fields.attrs()...)
}

func LogDebug(msg string, fields Fields) {
	slog.LogAttrs(context.Background(), slog.LevelDebug, msg, fields.attrs()...)
}
