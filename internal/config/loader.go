// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/vplay/internal/log"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	path      string
	lookup    LookupFunc
	overrides Overrides
	logger    zerolog.Logger

	// ConsumedEnvKeys records every environment key the last Load read.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader reading path (may be empty) and the process
// environment.
func NewLoader(path string, logger zerolog.Logger) *Loader {
	return &Loader{
		path:            path,
		lookup:          os.LookupEnv,
		logger:          log.WithComponent(logger, "config"),
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// WithLookup replaces the environment source.
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	l.lookup = fn
	return l
}

// WithOverrides sets the command-line flags applied last.
func (l *Loader) WithOverrides(o Overrides) *Loader {
	l.overrides = o
	return l
}

// Path is the config file path, empty when none was given.
func (l *Loader) Path() string {
	return l.path
}

// Load resolves Defaults < file < environment < flags and validates the result.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.path != "" {
		if err := l.loadFile(l.path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	env := &envReader{lookup: l.lookup, logger: l.logger, consumed: make(map[string]struct{})}
	env.apply(&cfg)
	l.ConsumedEnvKeys = env.consumed

	applyOverrides(&cfg, l.overrides)
	normalize(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}

	l.logger.Debug().
		Str(log.FieldEvent, "config.file_loaded").
		Str(log.FieldPath, path).
		Msg("config file loaded")
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.URI != nil {
		cfg.Control.URI = *o.URI
	}
	if o.InitialFile != nil {
		cfg.Playback.InitialFile = *o.InitialFile
	}
	if o.Backend != nil {
		cfg.Playback.Backend = *o.Backend
	}
	if o.LogLevel != nil {
		cfg.Log.Level = *o.LogLevel
	}
}

func normalize(cfg *Config) {
	cfg.Control.URI = strings.TrimSpace(cfg.Control.URI)
	cfg.Playback.Backend = strings.ToLower(strings.TrimSpace(cfg.Playback.Backend))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
}
