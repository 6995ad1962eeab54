// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package pipeline owns the decode → scheduler → render graph with its clock.
//
// A Graph is built for exactly one playback session. Construction either
// returns a fully wired graph (clock tunnel up, decoder input buffers enabled)
// or a StageError after releasing everything it created. The decoder to
// scheduler tunnel is completed lazily once the decoder reports its output
// port settings; Close tears down whatever exists and never fails the caller.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/metrics"
	"github.com/ManuGH/vplay/internal/omx"
	"github.com/rs/zerolog"
)

// Config tunes graph construction.
type Config struct {
	// ClockWaitMask selects the clock inputs that must report a start time.
	ClockWaitMask uint32
	// Coding is the elementary stream format negotiated on the decoder input.
	Coding omx.Coding
	// RenderTunnelTimeout bounds the scheduler → render tunnel setup.
	RenderTunnelTimeout time.Duration
}

// DefaultConfig matches the Broadcom reference pipeline.
func DefaultConfig() Config {
	return Config{
		ClockWaitMask:       1,
		Coding:              omx.CodingAVC,
		RenderTunnelTimeout: time.Second,
	}
}

// TunnelState tracks the deferred decoder → scheduler wiring.
type TunnelState int

const (
	TunnelPending TunnelState = iota
	TunnelComplete
)

func (t TunnelState) String() string {
	if t == TunnelComplete {
		return "complete"
	}
	return "pending"
}

const (
	tunnelDecodeScheduler = iota
	tunnelSchedulerRender
	tunnelClockScheduler
	tunnelCount
)

// Graph is one constructed pipeline. It is used from a single goroutine.
type Graph struct {
	svc    omx.Service
	cfg    Config
	logger zerolog.Logger

	decode    omx.Component
	scheduler omx.Component
	render    omx.Component
	clock     omx.Component

	// components lists created handles in creation order; unset roles are
	// never added.
	components []omx.Component
	tunnels    [tunnelCount]omx.Tunnel
	wired      [tunnelCount]bool

	buffersEnabled bool
	tunnelState    TunnelState
	closed         bool
}

// New builds the graph. On failure everything created so far has been torn
// down and the returned error is a *StageError.
func New(svc omx.Service, cfg Config, logger zerolog.Logger) (*Graph, error) {
	if svc == nil {
		return nil, &StageError{Stage: StageCreate, Err: errors.New("nil pipeline service")}
	}
	if cfg.Coding == 0 {
		cfg.Coding = omx.CodingAVC
	}
	if cfg.RenderTunnelTimeout <= 0 {
		cfg.RenderTunnelTimeout = DefaultConfig().RenderTunnelTimeout
	}

	g := &Graph{
		svc:    svc,
		cfg:    cfg,
		logger: log.WithComponent(logger, "pipeline"),
	}
	if err := g.construct(); err != nil {
		var se *StageError
		if errors.As(err, &se) {
			metrics.IncConstructFailure(string(se.Stage))
		}
		g.logger.Error().
			Err(err).
			Str(log.FieldEvent, "pipeline.construct_failed").
			Msg("pipeline construction failed")
		_ = g.Close()
		return nil, err
	}

	g.logger.Debug().
		Str(log.FieldEvent, "pipeline.constructed").
		Int("components", len(g.components)).
		Msg("pipeline constructed")
	return g, nil
}

func (g *Graph) construct() error {
	var err error
	if g.decode, err = g.create(omx.RoleVideoDecode, omx.FlagDisableAllPorts|omx.FlagEnableInputBuffers, StageCreateDecode); err != nil {
		return err
	}
	if g.scheduler, err = g.create(omx.RoleVideoScheduler, omx.FlagDisableAllPorts, StageCreateScheduler); err != nil {
		return err
	}
	if g.render, err = g.create(omx.RoleVideoRender, omx.FlagDisableAllPorts, StageCreateRender); err != nil {
		return err
	}
	if g.clock, err = g.create(omx.RoleClock, omx.FlagDisableAllPorts, StageCreateClock); err != nil {
		return err
	}

	if err := g.clock.SetClockWaiting(g.cfg.ClockWaitMask); err != nil {
		return stageErr(StageClockConfig, err)
	}

	g.tunnels[tunnelDecodeScheduler] = omx.Tunnel{Source: g.decode, SourcePort: omx.PortDecodeOutput, Sink: g.scheduler, SinkPort: omx.PortSchedulerInput}
	g.tunnels[tunnelSchedulerRender] = omx.Tunnel{Source: g.scheduler, SourcePort: omx.PortSchedulerOutput, Sink: g.render, SinkPort: omx.PortRenderInput}
	g.tunnels[tunnelClockScheduler] = omx.Tunnel{Source: g.clock, SourcePort: omx.PortClockOutput, Sink: g.scheduler, SinkPort: omx.PortSchedulerClock}

	if err := g.setupTunnel(tunnelClockScheduler, 0); err != nil {
		return stageErr(StageClockTunnel, err)
	}
	if err := g.ChangeState(g.clock, omx.StateExecuting); err != nil {
		return stageErr(StageClockExecuting, err)
	}
	if err := g.ChangeState(g.decode, omx.StateIdle); err != nil {
		return stageErr(StageDecodeIdle, err)
	}
	if err := g.decode.SetPortFormat(omx.PortDecodeInput, g.cfg.Coding); err != nil {
		return stageErr(StagePortFormat, err)
	}
	if err := g.decode.EnablePortBuffers(omx.PortDecodeInput); err != nil {
		return stageErr(StageInputBuffers, err)
	}
	g.buffersEnabled = true
	return nil
}

func (g *Graph) create(role omx.Role, flags omx.CreateFlags, stage Stage) (omx.Component, error) {
	c, err := g.svc.CreateComponent(role, flags)
	if err != nil {
		return nil, stageErr(stage, err)
	}
	if c == nil {
		return nil, stageErr(stage, fmt.Errorf("create %s: nil handle: %w", role, omx.ErrRefused))
	}
	g.components = append(g.components, c)
	return c, nil
}

func (g *Graph) setupTunnel(idx int, timeout time.Duration) error {
	t := &g.tunnels[idx]
	if err := g.svc.SetupTunnel(t, timeout); err != nil {
		return err
	}
	g.wired[idx] = true
	g.logger.Debug().
		Str(log.FieldEvent, "pipeline.tunnel_setup").
		Str("tunnel", t.String()).
		Msg("tunnel set up")
	return nil
}

// Decode, Scheduler, Render and Clock return the component handles.
func (g *Graph) Decode() omx.Component    { return g.decode }
func (g *Graph) Scheduler() omx.Component { return g.scheduler }
func (g *Graph) Render() omx.Component    { return g.render }
func (g *Graph) Clock() omx.Component     { return g.clock }

// ChangeState moves c to state, failing when the component refuses.
func (g *Graph) ChangeState(c omx.Component, state omx.State) error {
	if c == nil {
		return fmt.Errorf("change state to %s: unset component: %w", state, omx.ErrRefused)
	}
	old := c.State()
	if err := c.ChangeState(state); err != nil {
		return fmt.Errorf("%s %s->%s: %w", c.Role(), old, state, err)
	}
	g.logger.Debug().
		Str(log.FieldEvent, "pipeline.state_change").
		Str(log.FieldRole, string(c.Role())).
		Str(log.FieldOldState, old.String()).
		Str(log.FieldNewState, state.String()).
		Msg("component state changed")
	return nil
}

// StartDecoding moves the decoder to Executing.
func (g *Graph) StartDecoding() error {
	if err := g.ChangeState(g.decode, omx.StateExecuting); err != nil {
		return stageErr(StageDecodeExecuting, err)
	}
	return nil
}

// InputBuffer acquires a decoder input buffer, waiting at most wait. A nil
// result means no buffer became available.
func (g *Graph) InputBuffer(wait time.Duration) *omx.Buffer {
	if g.closed || !g.buffersEnabled {
		return nil
	}
	return g.decode.InputBuffer(omx.PortDecodeInput, wait)
}

// Submit hands a filled buffer to the decoder.
func (g *Graph) Submit(b *omx.Buffer) error {
	if b == nil {
		return stageErr(StageSubmit, fmt.Errorf("nil buffer: %w", omx.ErrRefused))
	}
	if err := g.decode.EmptyBuffer(b); err != nil {
		return stageErr(StageSubmit, err)
	}
	return nil
}

// TunnelState reports whether the decoder → scheduler tunnel is wired.
func (g *Graph) TunnelState() TunnelState {
	return g.tunnelState
}

// PortSettingsChanged consumes the decoder's port settings event. With a zero
// wait only an already pending event is taken; otherwise it waits up to wait.
func (g *Graph) PortSettingsChanged(wait time.Duration) bool {
	if wait <= 0 {
		return g.decode.RemoveEvent(omx.EventPortSettingsChanged, omx.PortDecodeOutput)
	}
	err := g.decode.WaitForEvent(omx.EventPortSettingsChanged, omx.PortDecodeOutput, wait)
	if err != nil {
		g.logger.Debug().
			Err(err).
			Str(log.FieldEvent, "pipeline.settings_wait").
			Dur("wait", wait).
			Msg("no port settings change")
		return false
	}
	return true
}

// CompleteTunnels wires decoder → scheduler, starts the scheduler, wires
// scheduler → render and starts the render. It runs once per graph.
func (g *Graph) CompleteTunnels() error {
	if g.tunnelState == TunnelComplete {
		return nil
	}
	if err := g.setupTunnel(tunnelDecodeScheduler, 0); err != nil {
		return stageErr(StageDecodeTunnel, err)
	}
	if err := g.ChangeState(g.scheduler, omx.StateExecuting); err != nil {
		return stageErr(StageSchedulerExecuting, err)
	}
	if err := g.setupTunnel(tunnelSchedulerRender, g.cfg.RenderTunnelTimeout); err != nil {
		return stageErr(StageRenderTunnel, err)
	}
	if err := g.ChangeState(g.render, omx.StateExecuting); err != nil {
		return stageErr(StageRenderExecuting, err)
	}
	g.tunnelState = TunnelComplete
	g.logger.Info().
		Str(log.FieldEvent, "pipeline.tunnel_complete").
		Msg("render path wired")
	return nil
}

// WaitRenderEOS waits up to timeout for the end-of-stream flag on the render
// input. An omx.ErrTimeout result means keep waiting.
func (g *Graph) WaitRenderEOS(timeout time.Duration) error {
	if g.render == nil {
		return fmt.Errorf("wait eos: unset render: %w", omx.ErrRefused)
	}
	return g.render.WaitForEvent(omx.EventBufferFlagEOS, omx.PortRenderInput, timeout)
}
