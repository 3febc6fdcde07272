// Package logging configures the process-wide slog.Logger used across the
// gateway, following the same text-for-dev/JSON-for-production split and
// component-scoped child-logger convention as internal/observability.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls the root logger's handler.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string

	// Format is "json" or "text". Defaults to "text".
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer

	// AddSource includes file:line in each record.
	AddSource bool
}

func (c Config) level() slog.Level {
	switch strings.ToLower(c.Level) {
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

// New builds a *slog.Logger from cfg without installing it as the default.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.level(),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

// Init builds a logger from cfg and installs it via slog.SetDefault. Call
// this once, from cmd/serialagentd's main, before any package-level logger
// reads slog.Default().
func Init(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// Component returns a child logger scoped to a named subsystem, matching
// the "component" field convention used throughout the core packages
// (e.g. logger.With("component", "scheduler")).
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
