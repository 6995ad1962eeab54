// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config resolves the player configuration from defaults, an
// optional YAML file, VPLAY_* environment variables and command-line flags,
// in that order of precedence.
package config

import "time"

// Backend names.
const (
	BackendILClient = "ilclient"
	BackendSim      = "sim"
)

// Config is the fully resolved configuration.
type Config struct {
	Control  ControlConfig  `yaml:"control"`
	Playback PlaybackConfig `yaml:"playback"`
	Sim      SimConfig      `yaml:"sim"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Status   StatusConfig   `yaml:"status"`
}

type ControlConfig struct {
	URI            string        `yaml:"uri"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	StopAfterFirst bool          `yaml:"stopAfterFirst"`
}

type PlaybackConfig struct {
	Backend             string        `yaml:"backend"`
	InitialFile         string        `yaml:"initialFile"`
	BufferWait          time.Duration `yaml:"bufferWait"`
	SettingsWait        time.Duration `yaml:"settingsWait"`
	DrainPoll           time.Duration `yaml:"drainPoll"`
	DrainTimeout        time.Duration `yaml:"drainTimeout"`
	RenderTunnelTimeout time.Duration `yaml:"renderTunnelTimeout"`
	IdleWait            time.Duration `yaml:"idleWait"`
	ClockWaitMask       uint32        `yaml:"clockWaitMask"`
}

// SimConfig tunes the in-memory backend.
type SimConfig struct {
	BufferSize    int           `yaml:"bufferSize"`
	BufferCount   int           `yaml:"bufferCount"`
	SettingsAfter int           `yaml:"settingsAfter"`
	EOSDelay      time.Duration `yaml:"eosDelay"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Textfile is a node_exporter textfile collector path; empty disables export.
	Textfile string        `yaml:"textfile"`
	Interval time.Duration `yaml:"interval"`
}

type StatusConfig struct {
	File string `yaml:"file"`
}

// Overrides carries command-line flags. Nil fields were not given.
type Overrides struct {
	URI         *string
	InitialFile *string
	Backend     *string
	LogLevel    *string
}
