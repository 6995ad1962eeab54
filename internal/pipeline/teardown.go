// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"errors"
	"fmt"

	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/metrics"
	"github.com/ManuGH/vplay/internal/omx"
)

// Close tears the graph down: flush and disable the wired tunnels, disable
// the decoder input buffers, tear the tunnels down, walk every component back
// through Idle to Loaded and release the handles.
//
// Every step runs even if an earlier one failed. Failures, including panics
// from the backend, are logged and returned joined; callers are free to
// ignore the result. Close is idempotent.
func (g *Graph) Close() error {
	if g == nil || g.closed {
		return nil
	}
	g.closed = true

	var errs []error
	step := func(name string, fn func()) {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, fmt.Errorf("teardown %s: panic: %v", name, r))
			}
		}()
		fn()
	}

	wired := g.wiredTunnels()
	if len(wired) > 0 {
		step("flush", func() { g.svc.FlushTunnels(wired) })
		g.logger.Debug().Str(log.FieldEvent, "pipeline.tunnels_flushed").Msg("TUNNELSFLUSHED")
		for _, t := range wired {
			step("disable "+t.String(), func() { g.svc.DisableTunnel(t) })
		}
	}
	if g.buffersEnabled {
		step("disable buffers", func() { g.decode.DisablePortBuffers(omx.PortDecodeInput) })
		g.buffersEnabled = false
	}
	if len(wired) > 0 {
		step("teardown tunnels", func() { g.svc.TeardownTunnels(wired) })
	}
	if len(g.components) > 0 {
		step("idle", func() { g.svc.StateTransition(g.components, omx.StateIdle) })
		step("loaded", func() { g.svc.StateTransition(g.components, omx.StateLoaded) })
		step("cleanup", func() { g.svc.CleanupComponents(g.components) })
	}

	g.wired = [tunnelCount]bool{}
	g.tunnelState = TunnelPending

	err := errors.Join(errs...)
	if err != nil {
		metrics.TeardownErrors.Add(float64(len(errs)))
		g.logger.Error().
			Err(err).
			Str(log.FieldEvent, "pipeline.teardown_errors").
			Int("failures", len(errs)).
			Msg("pipeline teardown completed with errors")
		return err
	}
	g.logger.Debug().
		Str(log.FieldEvent, "pipeline.closed").
		Int("components", len(g.components)).
		Msg("pipeline torn down")
	return nil
}

// Closed reports whether Close has run.
func (g *Graph) Closed() bool {
	return g.closed
}

func (g *Graph) wiredTunnels() []*omx.Tunnel {
	var ts []*omx.Tunnel
	for i := range g.tunnels {
		if g.wired[i] {
			ts = append(ts, &g.tunnels[i])
		}
	}
	return ts
}
