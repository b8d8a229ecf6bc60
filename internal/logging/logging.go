// Package logging sets up structured logging for hilrun and carries the
// logger through context.Context.
//
// The campaign packages never read a global logger. They call For(ctx,
// subsystem), which returns the logger stored by WithLogger tagged with the
// subsystem name, or a discarding logger when none was stored.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnvLogLevel overrides the configured log level when set.
const EnvLogLevel = "HILRUN_LOG_LEVEL"

var levelMap = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel converts a level name to a slog.Level. Level names are case
// insensitive. An empty name means info.
func ParseLevel(level string) (slog.Level, error) {
	if level == "" {
		return slog.LevelInfo, nil
	}
	l, ok := levelMap[strings.ToLower(level)]
	if !ok {
		var valid []string
		for k := range levelMap {
			valid = append(valid, k)
		}
		sort.Strings(valid)
		return 0, fmt.Errorf("invalid log level: %s; supported: %s", level, strings.Join(valid, ", "))
	}
	return l, nil
}

// Options configures Init.
type Options struct {
	Level    string    // level name, overridden by HILRUN_LOG_LEVEL
	Format   string    // "text" (default) or "json"
	FilePath string    // optional log file, written in addition to Output
	Output   io.Writer // defaults to os.Stderr
}

// Init builds the process logger and installs it as the slog default. The
// returned close function releases the log file, if any.
func Init(opts Options) (*slog.Logger, func() error, error) {
	level := opts.Level
	if env := os.Getenv(EnvLogLevel); env != "" {
		level = env
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	closeFn := func() error { return nil }
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closeFn = f.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		_ = closeFn()
		return nil, nil, fmt.Errorf("invalid log format: %s; supported: json, text", opts.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

type ctxKey int

const ctxKeyLogger ctxKey = iota

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// FromContext returns the logger carried by ctx, or a discarding logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok && l != nil {
		return l
	}
	return discard
}

// For returns the context logger tagged with a subsystem attribute.
func For(ctx context.Context, subsystem string) *slog.Logger {
	return FromContext(ctx).With("subsystem", subsystem)
}
