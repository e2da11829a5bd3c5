// Package logging builds the structured loggers used by the front end and
// the development backend.
//
// Values of attributes whose key names a credential (access and refresh
// tokens, passwords, authorization headers) are replaced before they reach
// the output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const redacted = "[REDACTED]"

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string
	// Format is json or text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
	}
}

// New creates a logger from cfg.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			return redact(a)
		},
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

func redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if isSecretKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	return a
}

func isSecretKey(key string) bool {
	switch strings.ToLower(key) {
	case "access", "refresh", "token", "refreshtoken", "refresh_token",
		"password", "password2", "authorization":
		return true
	}
	return false
}
