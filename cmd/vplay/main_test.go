// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/vplay/internal/control"
	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeHome() (string, error) { return "/home/pi", nil }

func TestParseSendArg(t *testing.T) {
	abs, err := filepath.Abs("clips/a.h264")
	require.NoError(t, err)

	tests := []struct {
		name string
		arg  string
		want control.Command
	}{
		{name: "no argument quits", arg: "", want: control.QuitCommand()},
		{name: "explicit quit", arg: "quit", want: control.QuitCommand()},
		{name: "pause word", arg: "pause", want: control.Command{Kind: control.Pause}},
		{name: "resume word", arg: "resume", want: control.Command{Kind: control.Resume}},
		{name: "continue alias", arg: "continue", want: control.Command{Kind: control.Resume}},
		{name: "file named like a word", arg: "/media/pause", want: control.PlayCommand("/media/pause")},
		{name: "explicit play of a word", arg: "play=/media/quit", want: control.PlayCommand("/media/quit")},
		{name: "absolute path", arg: "/media/a.h264", want: control.PlayCommand("/media/a.h264")},
		{name: "play prefix", arg: "play=/media/a.h264", want: control.PlayCommand("/media/a.h264")},
		{name: "home expansion", arg: "~/videos/b.h264", want: control.PlayCommand("/home/pi/videos/b.h264")},
		{name: "cleaned", arg: "/media//x/../a.h264", want: control.PlayCommand("/media/a.h264")},
		{name: "relative made absolute", arg: "clips/a.h264", want: control.PlayCommand(abs)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSendArg(tt.arg, fakeHome)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSendArg_Errors(t *testing.T) {
	_, err := parseSendArg("play=", fakeHome)
	require.Error(t, err)

	noHome := func() (string, error) { return "", errors.New("no home") }
	_, err = parseSendArg("~/a.h264", noHome)
	require.Error(t, err)
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "version", args: []string{"version"}, want: exitOK},
		{name: "unknown flag", args: []string{"--bogus"}, want: exitUsage},
		{name: "unknown subcommand", args: []string{"bogus"}, want: exitUsage},
		{name: "too many send args", args: []string{"send", "a", "b"}, want: exitUsage},
		{name: "empty play path", args: []string{"send", "play="}, want: exitUsage},
		{name: "invalid config", args: []string{"serve", "--backend", "nope"}, want: exitError},
		{name: "send without player", args: []string{"send", "--uri", "inproc://vplay-nobody", "--timeout", "100ms"}, want: exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(tt.args, io.Discard, io.Discard))
		})
	}
}

func TestVersionOutput(t *testing.T) {
	var out bytes.Buffer
	require.Equal(t, exitOK, run([]string{"version"}, &out, io.Discard))
	assert.Contains(t, out.String(), "vplay ")
}

func TestSend_DeliversToListener(t *testing.T) {
	uri := testutil.InprocURI("cli")
	mb := control.NewMailbox()
	l, err := control.Listen(control.ListenerConfig{URI: uri, PollInterval: 20 * time.Millisecond, Logger: log.Nop()}, mb)
	require.NoError(t, err)
	defer l.Close()

	require.Equal(t, exitOK, run([]string{"send", "--uri", uri, "/media/a.h264"}, io.Discard, io.Discard))
	assert.Equal(t, control.PlayCommand("/media/a.h264"), mb.WaitTake(2*time.Second))
}

func TestServe_QuitsCleanly(t *testing.T) {
	uri := testutil.InprocURI("cli")
	done := make(chan int, 1)
	go func() {
		done <- run([]string{"--backend", "sim", "--uri", uri, "--log-level", "error"}, io.Discard, io.Discard)
	}()

	require.Eventually(t, func() bool {
		return run([]string{"send", "--uri", uri, "--timeout", "200ms", "quit"}, io.Discard, io.Discard) == exitOK
	}, 5*time.Second, 50*time.Millisecond)

	select {
	case code := <-done:
		assert.Equal(t, exitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not exit after quit")
	}
}
