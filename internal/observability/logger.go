// Package observability provides structured logging for mp42hls.
package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/m-mizutani/masq"
)

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Format is "text" or "json".
	Format string
	// AddSource annotates each record with the call site.
	AddSource bool
}

// GlobalLogLevel is the shared log level, changeable at runtime via SetLogLevel.
var GlobalLogLevel = &slog.LevelVar{}

// NewLogger creates a slog.Logger writing to stderr per cfg.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stderr)
}

// keyMaterialRedactor redacts attributes that would otherwise leak raw
// AES key or IV bytes into log output (e.g. a startup summary of the
// resolved EncryptionState).
func keyMaterialRedactor() func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(
		masq.WithFieldName("key"),
		masq.WithFieldName("Key"),
		masq.WithFieldName("iv"),
		masq.WithFieldName("IV"),
	)
}

// NewLoggerWithWriter creates a slog.Logger writing to w, with key-material
// redaction applied to every record.
func NewLoggerWithWriter(cfg LoggingConfig, w io.Writer) *slog.Logger {
	GlobalLogLevel.Set(parseLevel(cfg.Level))
	redactor := keyMaterialRedactor()

	opts := &slog.HandlerOptions{
		Level:       GlobalLogLevel,
		AddSource:   cfg.AddSource,
		ReplaceAttr: redactor,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
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

// SetLogLevel changes the global log level at runtime.
func SetLogLevel(level string) {
	GlobalLogLevel.Set(parseLevel(level))
}
