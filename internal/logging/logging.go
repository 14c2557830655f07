// Package logging sets up the process-wide structured logger and derives
// component- and session-scoped children from it.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init builds the root logger. format is "json" or "text"; an unrecognized
// value falls back to text.
func Init(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level), AddSource: true}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Component derives a logger tagged with a component name.
func Component(base *slog.Logger, component string) *slog.Logger {
	return base.With(slog.String("component", component))
}

// Session derives a logger tagged with a component name and session ID.
func Session(base *slog.Logger, component, sessionID string) *slog.Logger {
	return base.With(slog.String("component", component), slog.String("session", sessionID))
}
