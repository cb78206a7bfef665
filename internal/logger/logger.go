// Package logger carries a structured logger through contexts.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is what sampler and server code log through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New wraps handler.
func New(handler slog.Handler) Logger {
	return &slogLogger{l: slog.New(handler)}
}

// Format selects an output encoding.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatText   Format = "text"
	FormatJSON   Format = "json"
)

// ParseFormat accepts pretty, text or json. Empty means pretty.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPretty, nil
	case FormatPretty, FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want pretty, text or json)", s)
	}
}

// NewWithFormat builds a logger writing to w. Pretty output is colored only
// when w is a terminal.
func NewWithFormat(w io.Writer, format Format, level slog.Level) Logger {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatJSON:
		opts.AddSource = true
		return New(slog.NewJSONHandler(w, opts))
	case FormatText:
		return New(slog.NewTextHandler(w, opts))
	default:
		return New(NewPrettyHandler(w, opts, isTerminal(w)))
	}
}

// Default logs warnings and above to stderr.
func Default() Logger {
	return NewWithFormat(os.Stderr, FormatText, slog.LevelWarn)
}

// Discard drops everything.
func Discard() Logger {
	return New(slog.DiscardHandler)
}

type loggerKey struct{}

// FromContext returns the logger stored by WithContext, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Default()
}

func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

func (s *slogLogger) WithGroup(name string) Logger {
	return &slogLogger{l: s.l.WithGroup(name)}
}

// ParseLevel converts debug, info, warn or error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
