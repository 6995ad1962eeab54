// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/vplay/internal/omx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreate(t *testing.T, s *Service, role omx.Role, flags omx.CreateFlags) omx.Component {
	t.Helper()
	c, err := s.CreateComponent(role, flags)
	require.NoError(t, err)
	return c
}

// executingDecoder returns a decoder with its input pool enabled and running.
func executingDecoder(t *testing.T, s *Service) omx.Component {
	t.Helper()
	dec := mustCreate(t, s, omx.RoleVideoDecode, omx.FlagDisableAllPorts|omx.FlagEnableInputBuffers)
	require.NoError(t, dec.ChangeState(omx.StateIdle))
	require.NoError(t, dec.EnablePortBuffers(omx.PortDecodeInput))
	require.NoError(t, dec.ChangeState(omx.StateExecuting))
	return dec
}

func submit(t *testing.T, dec omx.Component, filled int, flags omx.BufferFlags) {
	t.Helper()
	b := dec.InputBuffer(omx.PortDecodeInput, time.Second)
	require.NotNil(t, b)
	b.Filled = filled
	b.Flags = flags
	require.NoError(t, dec.EmptyBuffer(b))
}

func TestChangeState_AdjacentOnly(t *testing.T) {
	s := New(Options{})
	c := mustCreate(t, s, omx.RoleVideoRender, omx.FlagDisableAllPorts)

	err := c.ChangeState(omx.StateExecuting)
	require.ErrorIs(t, err, omx.ErrRefused)
	assert.Equal(t, omx.StateLoaded, c.State())

	require.NoError(t, c.ChangeState(omx.StateIdle))
	require.NoError(t, c.ChangeState(omx.StateExecuting))
	require.NoError(t, c.ChangeState(omx.StateExecuting), "same state is a no-op")
	assert.Equal(t, omx.StateExecuting, c.State())
}

func TestSetupTunnel_RefusesEnabledPort(t *testing.T) {
	s := New(Options{})
	clock := mustCreate(t, s, omx.RoleClock, omx.FlagDisableAllPorts)
	sched := mustCreate(t, s, omx.RoleVideoScheduler, omx.FlagDisableAllPorts)
	tun := &omx.Tunnel{Source: clock, SourcePort: omx.PortClockOutput, Sink: sched, SinkPort: omx.PortSchedulerClock}

	require.NoError(t, s.SetupTunnel(tun, 0))
	assert.Equal(t, omx.StateIdle, clock.State(), "tunnel setup moves loaded components to idle")
	assert.True(t, sched.(*Component).PortEnabled(omx.PortSchedulerClock))

	require.ErrorIs(t, s.SetupTunnel(tun, 0), omx.ErrRefused)

	s.DisableTunnel(tun)
	require.NoError(t, s.SetupTunnel(tun, 0))
}

func TestCreate_LiveLimit(t *testing.T) {
	s := New(Options{MaxLive: 2})
	a := mustCreate(t, s, omx.RoleVideoDecode, 0)
	mustCreate(t, s, omx.RoleClock, 0)

	_, err := s.CreateComponent(omx.RoleVideoRender, 0)
	require.ErrorIs(t, err, omx.ErrRefused)

	s.CleanupComponents([]omx.Component{a})
	assert.Equal(t, 1, s.Live())
	mustCreate(t, s, omx.RoleVideoRender, 0)
	assert.Equal(t, 2, s.MaxLiveObserved())
	assert.True(t, a.(*Component).Released())
}

func TestFailOn(t *testing.T) {
	boom := errors.New("boom")
	s := New(Options{})
	s.FailOn("create:clock", boom)

	_, err := s.CreateComponent(omx.RoleClock, 0)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"create clock"}, s.Trace())
}

func TestEnablePortBuffers_RequiresFlag(t *testing.T) {
	s := New(Options{})
	c := mustCreate(t, s, omx.RoleVideoDecode, omx.FlagDisableAllPorts)
	require.NoError(t, c.ChangeState(omx.StateIdle))
	require.ErrorIs(t, c.EnablePortBuffers(omx.PortDecodeInput), omx.ErrRefused)
}

func TestInputBuffer_PoolExhausted(t *testing.T) {
	s := New(Options{BufferCount: 1, BufferSize: 8})
	dec := executingDecoder(t, s)

	b := dec.InputBuffer(omx.PortDecodeInput, 10*time.Millisecond)
	require.NotNil(t, b)
	assert.Equal(t, 8, b.Capacity())
	assert.Nil(t, dec.InputBuffer(omx.PortDecodeInput, 10*time.Millisecond))

	// Submission hands the buffer back to the pool.
	b.Filled = 4
	require.NoError(t, dec.EmptyBuffer(b))
	assert.NotNil(t, dec.InputBuffer(omx.PortDecodeInput, 10*time.Millisecond))
}

func TestPortSettingsAfterDecodedBuffers(t *testing.T) {
	s := New(Options{SettingsAfter: 2})
	dec := executingDecoder(t, s)

	submit(t, dec, 4, omx.BufferStartTime)
	assert.False(t, dec.RemoveEvent(omx.EventPortSettingsChanged, omx.PortDecodeOutput))

	submit(t, dec, 4, omx.BufferTimeUnknown)
	assert.True(t, dec.RemoveEvent(omx.EventPortSettingsChanged, omx.PortDecodeOutput))
	assert.False(t, dec.RemoveEvent(omx.EventPortSettingsChanged, omx.PortDecodeOutput), "event is consumed once")

	subs := s.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, omx.BufferStartTime, subs[0].Flags)
}

func TestRenderEOS(t *testing.T) {
	build := func(t *testing.T, startRender bool) (*Service, omx.Component, omx.Component) {
		s := New(Options{})
		dec := mustCreate(t, s, omx.RoleVideoDecode, omx.FlagDisableAllPorts|omx.FlagEnableInputBuffers)
		sched := mustCreate(t, s, omx.RoleVideoScheduler, omx.FlagDisableAllPorts)
		render := mustCreate(t, s, omx.RoleVideoRender, omx.FlagDisableAllPorts)
		require.NoError(t, s.SetupTunnel(&omx.Tunnel{Source: dec, SourcePort: omx.PortDecodeOutput, Sink: sched, SinkPort: omx.PortSchedulerInput}, 0))
		require.NoError(t, s.SetupTunnel(&omx.Tunnel{Source: sched, SourcePort: omx.PortSchedulerOutput, Sink: render, SinkPort: omx.PortRenderInput}, time.Second))
		require.NoError(t, dec.EnablePortBuffers(omx.PortDecodeInput))
		require.NoError(t, dec.ChangeState(omx.StateExecuting))
		if startRender {
			require.NoError(t, render.ChangeState(omx.StateExecuting))
		}
		return s, dec, render
	}

	t.Run("reaches executing render", func(t *testing.T) {
		_, dec, render := build(t, true)
		submit(t, dec, 0, omx.BufferTimeUnknown|omx.BufferEOS)
		require.NoError(t, render.WaitForEvent(omx.EventBufferFlagEOS, omx.PortRenderInput, time.Second))
	})

	t.Run("idle render never reports", func(t *testing.T) {
		_, dec, render := build(t, false)
		submit(t, dec, 0, omx.BufferTimeUnknown|omx.BufferEOS)
		err := render.WaitForEvent(omx.EventBufferFlagEOS, omx.PortRenderInput, 20*time.Millisecond)
		require.ErrorIs(t, err, omx.ErrTimeout)
	})
}

func TestWaitForEvent_ReleasedComponent(t *testing.T) {
	s := New(Options{})
	c := mustCreate(t, s, omx.RoleVideoRender, 0)

	done := make(chan error, 1)
	go func() { done <- c.WaitForEvent(omx.EventBufferFlagEOS, omx.PortRenderInput, time.Minute) }()

	time.Sleep(10 * time.Millisecond)
	s.CleanupComponents([]omx.Component{c})

	select {
	case err := <-done:
		require.ErrorIs(t, err, omx.ErrRefused)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by cleanup")
	}
}
