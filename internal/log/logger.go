// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package log builds the process logger and the child loggers handed to each
// component at construction.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for building the base logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Format  string    // "json" (default) or "console"
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Service string    // optional service name attached to every log entry
	Version string    // optional build version attached to every log entry
}

// New builds a logger from cfg. It is called once at startup; components get
// children of the returned logger instead of reaching for global state.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "2006-01-02 15:04:05.000"}
	}

	service := cfg.Service
	if service == "" {
		service = "vplay"
	}

	ctx := zerolog.New(writer).Level(ParseLevel(cfg.Level)).With().
		Timestamp().
		Str("service", service)
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	return ctx.Logger()
}

// ParseLevel converts a level name to a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	level = strings.TrimSpace(level)
	if level == "" {
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return parsed
}

// SetGlobalLevel adjusts the minimum level for every logger in the process.
// Used by config hot reload.
func SetGlobalLevel(level string) zerolog.Level {
	parsed := ParseLevel(level)
	zerolog.SetGlobalLevel(parsed)
	return parsed
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str(FieldComponent, component).Logger()
}

// Nop returns a disabled logger, convenient for tests and optional sinks.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
