package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/klafs-vdc/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "klafs-vdc"

// redacted replaces the value of any attribute whose key names a secret.
const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the log.
var secretKeys = map[string]struct{}{
	"password":      {},
	"pin":           {},
	"cookie":        {},
	"auth_cookie":   {},
	"token":         {},
	"secret":        {},
	"authorization": {},
}

// Logger is a slog.Logger carrying the bridge's default fields.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging section of the config.
//
// Parameters:
//   - cfg: level, format and output
//   - version: build version attached to every entry
//
// Returns:
//   - *Logger: configured logger
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, outputFor(cfg.Output))
}

// NewWithWriter creates a Logger writing to w. Level and format still
// come from cfg.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{slog.New(h).With(
		slog.String("service", ServiceName),
		slog.String("version", version),
	)}
}

func outputFor(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// parseLevel maps debug, info, warn(ing) and error; anything else is info.
func parseLevel(level string) slog.Level {
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

// redact masks secret attributes, including those nested in groups.
func redact(_ []string, a slog.Attr) slog.Attr {
	if _, secret := secretKeys[strings.ToLower(a.Key)]; secret && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, redacted)
	}
	return a
}

// With returns a child Logger with extra default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// Component tags every entry with the emitting component.
//
// Example:
//
//	busLog := logger.Component("vdcbus")
//	busLog.Info("session started") // component=vdcbus
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before the configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard drops everything. Intended for tests.
func Discard() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
}
