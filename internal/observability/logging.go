// Package observability provides structured logging and Prometheus metrics
// for the runtime. Logging is built on log/slog with secret redaction applied
// to every attribute before it reaches the handler.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Shivay00001/aria-runtime/internal/security"
)

// LogConfig configures the logger.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format specifies output format: "json" or "text". JSON is the
	// production default.
	Format string

	// Output is the writer for log output (defaults to os.Stderr).
	Output io.Writer

	// KnownSecrets lists loaded secret values to substring-redact in
	// attribute values. Typically security.Secrets().KnownValues().
	KnownSecrets []string
}

// Logger wraps slog with redaction. Attribute keys with secret-like names and
// values containing loaded secrets are replaced before emission.
type Logger struct {
	logger *slog.Logger
	known  []string
}

// NewLogger creates a logger with the given configuration.
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return &Logger{logger: slog.New(handler), known: config.KnownSecrets}
}

// With returns a logger carrying the given attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(l.scrubArgs(args)...), known: l.known}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, l.scrubArgs(args)...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.scrubArgs(args)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, l.scrubArgs(args)...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.scrubArgs(args)...)
}

// scrubArgs applies key- and value-based redaction to alternating key/value
// slog arguments.
func (l *Logger) scrubArgs(args []any) []any {
	out := make([]any, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		record := security.ScrubRecord(map[string]any{key: normalize(out[i+1])}, l.known)
		out[i+1] = record[key]
	}
	return out
}

// normalize converts values the scrubber does not recurse into (it only
// understands strings, maps, and slices of any).
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return m
	case []string:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = e
		}
		return s
	default:
		return v
	}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
