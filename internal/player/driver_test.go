// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/vplay/internal/control"
	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/metrics"
	"github.com/ManuGH/vplay/internal/omx"
	"github.com/ManuGH/vplay/internal/omx/sim"
	"github.com/ManuGH/vplay/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackedInput struct {
	*bytes.Reader
	mu     sync.Mutex
	closes int
}

func (t *trackedInput) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *trackedInput) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

type fakeFS struct {
	mu     sync.Mutex
	files  map[string][]byte
	opened map[string]*trackedInput
}

func newFakeFS(files map[string][]byte) *fakeFS {
	return &fakeFS{files: files, opened: make(map[string]*trackedInput)}
}

func (f *fakeFS) Open(path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	in := &trackedInput{Reader: bytes.NewReader(data)}
	f.opened[path] = in
	return in, nil
}

func (f *fakeFS) Input(path string) *trackedInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[path]
}

// scriptedInbox hands out a command on the n-th TryTake call.
type scriptedInbox struct {
	mu    sync.Mutex
	calls int
	at    map[int]control.Command
}

func (s *scriptedInbox) TryTake() (control.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	cmd, ok := s.at[s.calls]
	return cmd, ok
}

func testConfig() Config {
	return Config{
		BufferWait:   50 * time.Millisecond,
		SettingsWait: 20 * time.Millisecond,
		DrainPoll:    5 * time.Millisecond,
		DrainTimeout: time.Second,
		Pipeline:     pipeline.DefaultConfig(),
	}
}

func newDriver(t *testing.T, svc omx.Service, inbox Inbox, fs *fakeFS, cfg Config) *Driver {
	t.Helper()
	d, err := New(svc, inbox, cfg, log.Nop(), WithOpener(fs.Open))
	require.NoError(t, err)
	return d
}

func payload(n int) []byte {
	return bytes.Repeat([]byte("x264"), n/4+1)[:n]
}

func dataSubmissions(subs []sim.Submission) []sim.Submission {
	var out []sim.Submission
	for _, s := range subs {
		if !s.Flags.Has(omx.BufferEOS) {
			out = append(out, s)
		}
	}
	return out
}

func countPrefix(trace []string, prefix string) int {
	n := 0
	for _, l := range trace {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func TestPlay_SubmitsCeilThenOneEOS(t *testing.T) {
	const capacity = 8
	tests := []struct {
		name    string
		size    int
		buffers int
	}{
		{"empty", 0, 0},
		{"exact", 8, 1},
		{"partial tail", 17, 3},
		{"several", 20, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := sim.New(sim.Options{BufferSize: capacity, BufferCount: 2})
			data := payload(tt.size)
			fs := newFakeFS(map[string][]byte{"/v.h264": data})
			d := newDriver(t, svc, &scriptedInbox{}, fs, testConfig())

			res, err := d.Play(context.Background(), "/v.h264")
			require.NoError(t, err)
			assert.Equal(t, OutcomeDone, res.Outcome)
			assert.Equal(t, tt.buffers, res.Buffers)
			assert.Equal(t, int64(tt.size), res.Bytes)
			assert.True(t, res.Next.IsNoOp())
			assert.NotEmpty(t, res.SessionID)

			subs := svc.Submissions()
			require.Len(t, subs, tt.buffers+1)
			var fed []byte
			for i, s := range subs[:tt.buffers] {
				assert.NotZero(t, s.Filled)
				if i == 0 {
					assert.Equal(t, omx.BufferStartTime, s.Flags, "first buffer carries the start time")
				} else {
					assert.Equal(t, omx.BufferTimeUnknown, s.Flags, "buffer %d", i)
				}
				fed = append(fed, s.Data...)
			}
			assert.Equal(t, string(data), string(fed))

			eos := subs[len(subs)-1]
			assert.Zero(t, eos.Filled)
			assert.Equal(t, omx.BufferTimeUnknown|omx.BufferEOS, eos.Flags)

			assert.Zero(t, svc.Live())
			assert.Equal(t, 1, fs.Input("/v.h264").Closes())
		})
	}
}

func TestPlay_QuitBeforeFirstSubmit(t *testing.T) {
	svc := sim.New(sim.Options{BufferSize: 8})
	fs := newFakeFS(map[string][]byte{"/v.h264": payload(64)})
	mb := control.NewMailbox()
	mb.Set(control.QuitCommand())
	d := newDriver(t, svc, mb, fs, testConfig())

	res, err := d.Play(context.Background(), "/v.h264")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInterrupted, res.Outcome)
	assert.Equal(t, control.QuitCommand(), res.Next)
	assert.Empty(t, svc.Submissions(), "no data and no EOS after an immediate interrupt")

	assert.Equal(t, 1, countPrefix(svc.Trace(), "cleanup "), "exactly one teardown")
	assert.Zero(t, svc.Live())
	assert.Equal(t, 1, fs.Input("/v.h264").Closes())
}

func TestPlay_PlayDuringFeed(t *testing.T) {
	svc := sim.New(sim.Options{BufferSize: 8})
	fs := newFakeFS(map[string][]byte{"/a.h264": payload(64)})
	inbox := &scriptedInbox{at: map[int]control.Command{3: control.PlayCommand("/b.h264")}}
	d := newDriver(t, svc, inbox, fs, testConfig())

	res, err := d.Play(context.Background(), "/a.h264")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInterrupted, res.Outcome)
	assert.Equal(t, control.PlayCommand("/b.h264"), res.Next)
	assert.Equal(t, 2, res.Buffers)
	assert.Len(t, svc.Submissions(), 2, "interrupt skips the EOS buffer")
	assert.Zero(t, svc.Live())
}

func TestPlay_QuitDuringDrain(t *testing.T) {
	// One data buffer plus the terminal read take two polls; the third is
	// the first drain check.
	svc := sim.New(sim.Options{BufferSize: 8, EOSDelay: time.Hour})
	fs := newFakeFS(map[string][]byte{"/v.h264": payload(8)})
	inbox := &scriptedInbox{at: map[int]control.Command{3: control.QuitCommand()}}
	d := newDriver(t, svc, inbox, fs, testConfig())

	res, err := d.Play(context.Background(), "/v.h264")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInterrupted, res.Outcome)
	assert.Equal(t, control.QuitCommand(), res.Next)

	subs := svc.Submissions()
	require.Len(t, subs, 2)
	assert.True(t, subs[1].Flags.Has(omx.BufferEOS))
	assert.Zero(t, svc.Live())
}

func TestPlay_DrainTimeout(t *testing.T) {
	svc := sim.New(sim.Options{BufferSize: 8, EOSDelay: time.Hour})
	fs := newFakeFS(map[string][]byte{"/v.h264": payload(8)})
	cfg := testConfig()
	cfg.DrainTimeout = 30 * time.Millisecond
	d := newDriver(t, svc, nil, fs, cfg)

	start := time.Now()
	res, err := d.Play(context.Background(), "/v.h264")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPlay_SettingsNeverArrive(t *testing.T) {
	svc := sim.New(sim.Options{BufferSize: 8, SettingsAfter: -1})
	fs := newFakeFS(map[string][]byte{"/v.h264": payload(20)})
	d := newDriver(t, svc, nil, fs, testConfig())

	res, err := d.Play(context.Background(), "/v.h264")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Len(t, dataSubmissions(svc.Submissions()), 3)
	assert.Len(t, svc.Submissions(), 4)
	assert.NotContains(t, svc.Trace(), "state video_render executing")
	assert.Zero(t, svc.Live())
}

func TestPlay_OpenFailure(t *testing.T) {
	before := testutil.ToFloat64(metrics.SessionsTotal.WithLabelValues(string(OutcomeFailed)))
	svc := sim.New(sim.Options{})
	d := newDriver(t, svc, nil, newFakeFS(nil), testConfig())

	res, err := d.Play(context.Background(), "/missing.h264")
	require.ErrorIs(t, err, ErrOpenInput)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, svc.Trace(), "the graph is not built when the input cannot be opened")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SessionsTotal.WithLabelValues(string(OutcomeFailed))))
}

func TestPlay_SubmitRefused(t *testing.T) {
	svc := sim.New(sim.Options{BufferSize: 8})
	svc.FailOn("submit:video_decode", omx.ErrRefused)
	fs := newFakeFS(map[string][]byte{"/v.h264": payload(20)})
	d := newDriver(t, svc, nil, fs, testConfig())

	res, err := d.Play(context.Background(), "/v.h264")
	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, pipeline.StageSubmit, se.Stage)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, svc.Live())
	assert.Equal(t, 1, fs.Input("/v.h264").Closes())
}

func TestPlay_ConstructionFailureClosesInput(t *testing.T) {
	svc := sim.New(sim.Options{})
	svc.FailOn("create:clock", omx.ErrRefused)
	fs := newFakeFS(map[string][]byte{"/v.h264": payload(8)})
	d := newDriver(t, svc, nil, fs, testConfig())

	res, err := d.Play(context.Background(), "/v.h264")
	require.ErrorIs(t, err, omx.ErrRefused)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, svc.Live())
	assert.Equal(t, 1, fs.Input("/v.h264").Closes())
}

func TestPlay_CancelledContextReadsAsQuit(t *testing.T) {
	svc := sim.New(sim.Options{BufferSize: 8})
	fs := newFakeFS(map[string][]byte{"/v.h264": payload(64)})
	d := newDriver(t, svc, nil, fs, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := d.Play(ctx, "/v.h264")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInterrupted, res.Outcome)
	assert.Equal(t, control.QuitCommand(), res.Next)
	assert.Zero(t, svc.Live())
}

func TestPlay_ReservedCommandsIgnored(t *testing.T) {
	svc := sim.New(sim.Options{BufferSize: 8})
	fs := newFakeFS(map[string][]byte{"/v.h264": payload(16)})
	inbox := &scriptedInbox{at: map[int]control.Command{
		1: {Kind: control.Pause},
		2: {Kind: control.Resume},
	}}
	d := newDriver(t, svc, inbox, fs, testConfig())

	res, err := d.Play(context.Background(), "/v.h264")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, 2, res.Buffers)
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(nil, nil, Config{}, log.Nop())
	assert.ErrorIs(t, err, ErrNoService)
}

func TestPlay_SessionIDFromContext(t *testing.T) {
	svc := sim.New(sim.Options{BufferSize: 8})
	fs := newFakeFS(map[string][]byte{"/v.h264": payload(4)})
	d := newDriver(t, svc, nil, fs, testConfig())

	ctx := log.ContextWithSessionID(context.Background(), "sess-1")
	res, err := d.Play(ctx, "/v.h264")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", res.SessionID)
}

// failingInput yields its data and then fails every read with err.
type failingInput struct {
	r      *bytes.Reader
	err    error
	closes int
}

func (f *failingInput) Read(p []byte) (int, error) {
	if n, _ := f.r.Read(p); n > 0 {
		return n, nil
	}
	return 0, f.err
}

func (f *failingInput) Close() error {
	f.closes++
	return nil
}

func TestPlay_ReadErrorKeepsShortRead(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		buffers int
	}{
		{"error after partial buffer", 100, 2},
		{"error after full buffers", 128, 2},
		{"error on first read", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := sim.New(sim.Options{BufferSize: 64, BufferCount: 2})
			data := payload(tt.size)
			in := &failingInput{r: bytes.NewReader(data), err: errors.New("device hiccup")}
			d, err := New(svc, &scriptedInbox{}, testConfig(), log.Nop(),
				WithOpener(func(string) (io.ReadCloser, error) { return in, nil }))
			require.NoError(t, err)

			res, err := d.Play(context.Background(), "/v.h264")
			require.NoError(t, err)
			assert.Equal(t, OutcomeDone, res.Outcome)
			assert.Equal(t, tt.buffers, res.Buffers)
			assert.Equal(t, int64(tt.size), res.Bytes)

			subs := svc.Submissions()
			var fed []byte
			for _, s := range dataSubmissions(subs) {
				fed = append(fed, s.Data...)
			}
			assert.Equal(t, string(data), string(fed), "every byte read before the error is submitted")
			require.NotEmpty(t, subs)
			assert.True(t, subs[len(subs)-1].Flags.Has(omx.BufferEOS), "input still ends with EOS")

			assert.Equal(t, 1, in.closes)
		})
	}
}
