// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment keys.
const (
	EnvControlURI          = "VPLAY_CONTROL_URI"
	EnvPollInterval        = "VPLAY_CONTROL_POLL_INTERVAL"
	EnvStopAfterFirst      = "VPLAY_CONTROL_STOP_AFTER_FIRST"
	EnvBackend             = "VPLAY_BACKEND"
	EnvVideo               = "VPLAY_VIDEO"
	EnvBufferWait          = "VPLAY_BUFFER_WAIT"
	EnvSettingsWait        = "VPLAY_SETTINGS_WAIT"
	EnvDrainPoll           = "VPLAY_DRAIN_POLL"
	EnvDrainTimeout        = "VPLAY_DRAIN_TIMEOUT"
	EnvRenderTunnelTimeout = "VPLAY_RENDER_TUNNEL_TIMEOUT"
	EnvIdleWait            = "VPLAY_IDLE_WAIT"
	EnvClockWaitMask       = "VPLAY_CLOCK_WAIT_MASK"
	EnvSimSettingsAfter    = "VPLAY_SIM_SETTINGS_AFTER"
	EnvLogLevel            = "VPLAY_LOG_LEVEL"
	EnvLogFormat           = "VPLAY_LOG_FORMAT"
	EnvMetricsTextfile     = "VPLAY_METRICS_TEXTFILE"
	EnvMetricsInterval     = "VPLAY_METRICS_INTERVAL"
	EnvStatusFile          = "VPLAY_STATUS_FILE"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envReader reads typed values and logs where each one came from.
type envReader struct {
	lookup   LookupFunc
	logger   zerolog.Logger
	consumed map[string]struct{}
}

func (e *envReader) get(key string) (string, bool) {
	e.consumed[key] = struct{}{}
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// String reads a string, keeping current when the variable is unset or empty.
func (e *envReader) String(key, current string) string {
	v, ok := e.get(key)
	if !ok {
		return current
	}
	e.logger.Debug().
		Str("key", key).
		Str("value", v).
		Str("source", "environment").
		Msg("using environment variable")
	return v
}

// Int reads an integer and falls back to current on parse errors.
func (e *envReader) Int(key string, current int) int {
	v, ok := e.get(key)
	if !ok {
		return current
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", current).
			Msg("invalid integer in environment variable, using default")
		return current
	}
	e.logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	return i
}

// Duration reads a Go duration ("5s") and falls back to current on parse errors.
func (e *envReader) Duration(key string, current time.Duration) time.Duration {
	v, ok := e.get(key)
	if !ok {
		return current
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", current).
			Msg("invalid duration in environment variable, using default")
		return current
	}
	e.logger.Debug().Str("key", key).Dur("value", d).Str("source", "environment").Msg("using environment variable")
	return d
}

// Bool accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func (e *envReader) Bool(key string, current bool) bool {
	v, ok := e.get(key)
	if !ok {
		return current
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	e.logger.Warn().
		Str("key", key).
		Str("value", v).
		Bool("default", current).
		Msg("invalid boolean in environment variable, using default")
	return current
}

func (e *envReader) apply(cfg *Config) {
	cfg.Control.URI = e.String(EnvControlURI, cfg.Control.URI)
	cfg.Control.PollInterval = e.Duration(EnvPollInterval, cfg.Control.PollInterval)
	cfg.Control.StopAfterFirst = e.Bool(EnvStopAfterFirst, cfg.Control.StopAfterFirst)

	cfg.Playback.Backend = e.String(EnvBackend, cfg.Playback.Backend)
	cfg.Playback.InitialFile = e.String(EnvVideo, cfg.Playback.InitialFile)
	cfg.Playback.BufferWait = e.Duration(EnvBufferWait, cfg.Playback.BufferWait)
	cfg.Playback.SettingsWait = e.Duration(EnvSettingsWait, cfg.Playback.SettingsWait)
	cfg.Playback.DrainPoll = e.Duration(EnvDrainPoll, cfg.Playback.DrainPoll)
	cfg.Playback.DrainTimeout = e.Duration(EnvDrainTimeout, cfg.Playback.DrainTimeout)
	cfg.Playback.RenderTunnelTimeout = e.Duration(EnvRenderTunnelTimeout, cfg.Playback.RenderTunnelTimeout)
	cfg.Playback.IdleWait = e.Duration(EnvIdleWait, cfg.Playback.IdleWait)
	if mask := e.Int(EnvClockWaitMask, int(cfg.Playback.ClockWaitMask)); mask >= 0 {
		cfg.Playback.ClockWaitMask = uint32(mask)
	}

	cfg.Sim.SettingsAfter = e.Int(EnvSimSettingsAfter, cfg.Sim.SettingsAfter)

	cfg.Log.Level = e.String(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = e.String(EnvLogFormat, cfg.Log.Format)

	cfg.Metrics.Textfile = e.String(EnvMetricsTextfile, cfg.Metrics.Textfile)
	cfg.Metrics.Interval = e.Duration(EnvMetricsInterval, cfg.Metrics.Interval)

	cfg.Status.File = e.String(EnvStatusFile, cfg.Status.File)
}
