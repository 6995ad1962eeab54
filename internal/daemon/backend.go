// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"fmt"

	"github.com/ManuGH/vplay/internal/config"
	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/omx"
	"github.com/ManuGH/vplay/internal/omx/ilclient"
	"github.com/ManuGH/vplay/internal/omx/sim"
	"github.com/ManuGH/vplay/internal/pipeline"
	"github.com/ManuGH/vplay/internal/player"
	"github.com/rs/zerolog"
)

// OpenBackend initialises the configured pipeline service.
func OpenBackend(cfg config.Config, logger zerolog.Logger) (omx.Service, error) {
	switch cfg.Playback.Backend {
	case config.BackendILClient:
		svc, err := ilclient.Open(logger)
		if err != nil {
			return nil, fmt.Errorf("initialise video core: %w", err)
		}
		return svc, nil
	case config.BackendSim:
		logger.Warn().
			Str(log.FieldEvent, "daemon.sim_backend").
			Msg("using simulated pipeline, no video output")
		return sim.New(sim.Options{
			BufferSize:    cfg.Sim.BufferSize,
			BufferCount:   cfg.Sim.BufferCount,
			SettingsAfter: cfg.Sim.SettingsAfter,
			EOSDelay:      cfg.Sim.EOSDelay,
			Logger:        logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Playback.Backend)
	}
}

// PlayerConfig maps the playback section onto driver timings.
func PlayerConfig(cfg config.Config) player.Config {
	return player.Config{
		BufferWait:   cfg.Playback.BufferWait,
		SettingsWait: cfg.Playback.SettingsWait,
		DrainPoll:    cfg.Playback.DrainPoll,
		DrainTimeout: cfg.Playback.DrainTimeout,
		Pipeline: pipeline.Config{
			ClockWaitMask:       cfg.Playback.ClockWaitMask,
			Coding:              omx.CodingAVC,
			RenderTunnelTimeout: cfg.Playback.RenderTunnelTimeout,
		},
	}
}
