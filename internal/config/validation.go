// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/vplay/internal/validate"
)

// drainOutlasts rejects a simulated EOS delay the drain bound would always cut
// short. A zero bound waits indefinitely and accepts any delay.
func drainOutlasts(drainTimeout time.Duration) func(any) error {
	return func(value any) error {
		delay, ok := value.(time.Duration)
		if !ok || drainTimeout <= 0 || delay < drainTimeout {
			return nil
		}
		return fmt.Errorf("must be shorter than playback.drainTimeout (%s)", drainTimeout)
	}
}

// Validate checks a resolved configuration. The error wraps ErrInvalid.
func Validate(cfg Config) error {
	v := validate.New()

	v.ControlURI("control.uri", cfg.Control.URI)
	v.PositiveDuration("control.pollInterval", cfg.Control.PollInterval)

	v.OneOf("playback.backend", cfg.Playback.Backend, []string{BackendILClient, BackendSim})
	v.PositiveDuration("playback.bufferWait", cfg.Playback.BufferWait)
	v.PositiveDuration("playback.settingsWait", cfg.Playback.SettingsWait)
	v.PositiveDuration("playback.drainPoll", cfg.Playback.DrainPoll)
	v.NonNegativeDuration("playback.drainTimeout", cfg.Playback.DrainTimeout)
	v.PositiveDuration("playback.renderTunnelTimeout", cfg.Playback.RenderTunnelTimeout)
	v.PositiveDuration("playback.idleWait", cfg.Playback.IdleWait)

	if cfg.Playback.Backend == BackendSim {
		v.Positive("sim.bufferSize", cfg.Sim.BufferSize)
		v.Range("sim.bufferCount", cfg.Sim.BufferCount, 1, 64)
		v.NonNegativeDuration("sim.eosDelay", cfg.Sim.EOSDelay)
		v.Custom("sim.eosDelay", cfg.Sim.EOSDelay, drainOutlasts(cfg.Playback.DrainTimeout))
	}

	v.LogLevel("log.level", cfg.Log.Level)
	v.OneOf("log.format", cfg.Log.Format, []string{"json", "console"})

	v.FilePath("metrics.textfile", cfg.Metrics.Textfile)
	if cfg.Metrics.Textfile != "" {
		v.PositiveDuration("metrics.interval", cfg.Metrics.Interval)
	}
	v.FilePath("status.file", cfg.Status.File)

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
