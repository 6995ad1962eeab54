// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// DefaultControlURI is where the reference control client connects.
const DefaultControlURI = "ipc:///tmp/sv"

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Control: ControlConfig{
			URI:          DefaultControlURI,
			PollInterval: 100 * time.Millisecond,
		},
		Playback: PlaybackConfig{
			Backend:             BackendILClient,
			BufferWait:          500 * time.Millisecond,
			SettingsWait:        10 * time.Second,
			DrainPoll:           100 * time.Millisecond,
			DrainTimeout:        30 * time.Second,
			RenderTunnelTimeout: time.Second,
			IdleWait:            time.Second,
			ClockWaitMask:       1,
		},
		Sim: SimConfig{
			BufferSize:    80 * 1024,
			BufferCount:   4,
			SettingsAfter: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Interval: 15 * time.Second,
		},
	}
}
