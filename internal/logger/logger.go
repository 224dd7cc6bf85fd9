// Package logger sets up structured JSON logging via log/slog and routes
// the stdlib log package through it so component-prefixed log.Printf
// lines end up in the same stream.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Init creates the service logger and installs it as the slog default.
// level accepts debug, info, warn and error; anything else means info.
func Init(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
