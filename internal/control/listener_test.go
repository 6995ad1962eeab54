// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package control

import (
	"testing"
	"time"

	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startListener(t *testing.T, cfg ListenerConfig) (*Listener, *Mailbox) {
	t.Helper()
	if cfg.URI == "" {
		cfg.URI = testutil.InprocURI("control")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	cfg.Logger = log.Nop()

	mb := NewMailbox()
	l, err := Listen(cfg, mb)
	require.NoError(t, err)
	return l, mb
}

func dial(t *testing.T, uri string) *Client {
	t.Helper()
	c, err := Dial(uri, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestListener_DeliversCommands(t *testing.T) {
	l, mb := startListener(t, ListenerConfig{})
	defer l.Close()
	c := dial(t, l.cfg.URI)

	require.NoError(t, c.Send(PlayCommand("/tmp/a.h264")))
	assert.Equal(t, PlayCommand("/tmp/a.h264"), mb.WaitTake(2*time.Second))

	// The listener keeps running after the first frame.
	require.NoError(t, c.Send(QuitCommand()))
	assert.Equal(t, QuitCommand(), mb.WaitTake(2*time.Second))
	assert.True(t, l.Alive())
	assert.Equal(t, uint64(2), l.Received())
}

func TestListener_DropsFramesItCannotAct(t *testing.T) {
	l, mb := startListener(t, ListenerConfig{})
	defer l.Close()
	c := dial(t, l.cfg.URI)

	require.NoError(t, c.Send(PlayCommand("/pending")))
	require.Eventually(t, func() bool { return l.Received() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Unknown and reserved frames must not overwrite the pending command.
	frames := []string{"rewind=10", "pause", "resume", "continue", "play="}
	for _, f := range frames {
		require.NoError(t, c.SendRaw([]byte(f)))
	}
	want := uint64(1 + len(frames))
	require.Eventually(t, func() bool { return l.Received() == want }, 2*time.Second, 5*time.Millisecond)

	got, ok := mb.TryTake()
	require.True(t, ok)
	assert.Equal(t, PlayCommand("/pending"), got)
	assert.Zero(t, mb.Overwrites())
	assert.True(t, l.Alive())
}

func TestListener_StopAfterFirst(t *testing.T) {
	l, mb := startListener(t, ListenerConfig{StopAfterFirst: true})
	defer l.Close()
	c := dial(t, l.cfg.URI)

	require.NoError(t, c.Send(QuitCommand()))
	assert.Equal(t, QuitCommand(), mb.WaitTake(2*time.Second))

	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("single-shot listener kept running")
	}
	assert.ErrorIs(t, l.Err(), ErrSingleShot)
}

func TestListen_BindFailureFailsFast(t *testing.T) {
	l, _ := startListener(t, ListenerConfig{})
	defer l.Close()

	_, err := Listen(ListenerConfig{URI: l.cfg.URI, Logger: log.Nop()}, NewMailbox())
	require.Error(t, err)

	_, err = Listen(ListenerConfig{URI: "bogus://nowhere", Logger: log.Nop()}, NewMailbox())
	require.Error(t, err)
}

func TestListen_Validation(t *testing.T) {
	_, err := Listen(ListenerConfig{}, NewMailbox())
	require.ErrorIs(t, err, ErrMissingURI)

	_, err = Listen(ListenerConfig{URI: testutil.InprocURI("control")}, nil)
	require.ErrorIs(t, err, ErrMissingMailbox)
}

func TestListener_CloseJoinsLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l, _ := startListener(t, ListenerConfig{})
	require.True(t, l.Alive())

	start := time.Now()
	require.NoError(t, l.Close())
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, l.Alive(), "loop must have exited before Close returns")
	assert.NoError(t, l.Err())

	// Idempotent.
	require.NoError(t, l.Close())
}
