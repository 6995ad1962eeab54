// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package player feeds one elementary stream file through a freshly built
// pipeline, completes the render path once the decoder knows its output
// format, drains the end-of-stream marker and tears everything down. Every
// step checks the control inbox so a quit or a new play request pre-empts the
// running file within one iteration.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ManuGH/vplay/internal/control"
	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/metrics"
	"github.com/ManuGH/vplay/internal/omx"
	"github.com/ManuGH/vplay/internal/pipeline"
	"github.com/ManuGH/vplay/internal/pipeline/fsm"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Inbox is the consumer side of the control mailbox.
type Inbox interface {
	TryTake() (control.Command, bool)
}

// Opener opens the input resource for a path.
type Opener func(path string) (io.ReadCloser, error)

func openFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Config tunes the feed and drain loops.
type Config struct {
	// BufferWait bounds a single decoder input buffer acquisition.
	BufferWait time.Duration
	// SettingsWait bounds the one blocking wait for port settings once the
	// input is exhausted.
	SettingsWait time.Duration
	// DrainPoll is the interval between inbox checks while draining EOS.
	DrainPoll time.Duration
	// DrainTimeout bounds the whole drain. Zero waits until EOS or a command.
	DrainTimeout time.Duration

	Pipeline pipeline.Config
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		BufferWait:   500 * time.Millisecond,
		SettingsWait: 10 * time.Second,
		DrainPoll:    100 * time.Millisecond,
		DrainTimeout: 30 * time.Second,
		Pipeline:     pipeline.DefaultConfig(),
	}
}

// Result describes a finished playback.
type Result struct {
	SessionID string
	Path      string
	Outcome   Outcome
	// Next is the command that interrupted playback, NoOp otherwise.
	Next     control.Command
	Buffers  int
	Bytes    int64
	Duration time.Duration
}

// Driver plays files one at a time. It is not safe for concurrent use.
type Driver struct {
	svc    omx.Service
	inbox  Inbox
	cfg    Config
	open   Opener
	logger zerolog.Logger

	drainLog rate.Sometimes
	readLog  rate.Sometimes
}

// Option customises a Driver.
type Option func(*Driver)

// WithOpener replaces os.Open as the input source.
func WithOpener(open Opener) Option {
	return func(d *Driver) { d.open = open }
}

// New returns a driver playing through svc and polling inbox.
func New(svc omx.Service, inbox Inbox, cfg Config, logger zerolog.Logger, opts ...Option) (*Driver, error) {
	if svc == nil {
		return nil, ErrNoService
	}
	def := DefaultConfig()
	if cfg.BufferWait <= 0 {
		cfg.BufferWait = def.BufferWait
	}
	if cfg.SettingsWait <= 0 {
		cfg.SettingsWait = def.SettingsWait
	}
	if cfg.DrainPoll <= 0 {
		cfg.DrainPoll = def.DrainPoll
	}
	if cfg.DrainTimeout < 0 {
		cfg.DrainTimeout = 0
	}
	d := &Driver{
		svc:      svc,
		inbox:    inbox,
		cfg:      cfg,
		open:     openFile,
		logger:   log.WithComponent(logger, "player"),
		drainLog: rate.Sometimes{First: 1, Interval: 2 * time.Second},
		readLog:  rate.Sometimes{First: 3, Interval: time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// session is the per-file state.
type session struct {
	res    Result
	logger zerolog.Logger
	graph  *pipeline.Graph
	input  io.ReadCloser
	first  bool
	held   *omx.Buffer

	// inputEnded is set after a read error; later reads report exhaustion.
	inputEnded bool
}

// Play runs one file to completion, interruption or failure. Teardown of the
// graph and closing of the input happen before Play returns, whatever the
// outcome. Result.Next carries the interrupting command even if err != nil.
// The session ID is taken from ctx when present.
func (d *Driver) Play(ctx context.Context, path string) (res Result, err error) {
	start := time.Now()
	id := log.SessionIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	s := &session{
		res: Result{
			SessionID: id,
			Path:      path,
			Next:      control.Command{Kind: control.NoOp},
		},
		first: true,
	}
	ctx = log.ContextWithSessionID(ctx, s.res.SessionID)
	s.logger = log.WithContext(ctx, d.logger).With().Str(log.FieldPath, path).Logger()

	m := newFeedMachine()
	m.Observe(func(from, to FeedState, ev feedEvent) {
		s.logger.Debug().
			Str(log.FieldEvent, "player.state").
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Str("trigger", string(ev)).
			Msg("feed state changed")
	})

	defer func() {
		d.finish(s, m.State(), start)
		res = s.res
	}()

	input, err := d.open(path)
	if err != nil {
		d.fire(s, m, evFail)
		return s.res, fmt.Errorf("%w %s: %w", ErrOpenInput, path, err)
	}
	s.input = input

	g, err := pipeline.New(d.svc, d.cfg.Pipeline, s.logger)
	if err != nil {
		d.fire(s, m, evFail)
		return s.res, err
	}
	s.graph = g

	if err := g.StartDecoding(); err != nil {
		d.fire(s, m, evFail)
		return s.res, err
	}
	s.logger.Info().Str(log.FieldEvent, "player.started").Msg("RUNNING")

	ev, err := d.feed(ctx, s)
	d.fire(s, m, ev)
	if err != nil {
		return s.res, err
	}
	if m.State() != StateDrainingEOS {
		return s.res, nil
	}
	s.logger.Debug().Str(log.FieldEvent, "player.feed_done").Msg("AFTERRUNNING")

	ev, err = d.drain(ctx, s)
	d.fire(s, m, ev)
	return s.res, err
}

// feed runs the input loop. It returns evInterrupt, evInputEnded after the
// EOS buffer went out, or evFail with the cause.
func (d *Driver) feed(ctx context.Context, s *session) (feedEvent, error) {
	g := s.graph
	for {
		if cmd, ok := d.poll(ctx, s); ok {
			s.res.Next = cmd
			return evInterrupt, nil
		}

		buf := g.InputBuffer(d.cfg.BufferWait)
		if buf == nil {
			s.logger.Warn().
				Str(log.FieldEvent, "player.no_buffer").
				Dur("wait", d.cfg.BufferWait).
				Msg("no decoder input buffer available, ending input")
			break
		}

		n := d.read(s, buf)

		if g.TunnelState() == pipeline.TunnelPending {
			wait := time.Duration(0)
			if n == 0 {
				wait = d.cfg.SettingsWait
			}
			if g.PortSettingsChanged(wait) {
				s.logger.Info().Str(log.FieldEvent, "player.port_settings_changed").Msg("PORT_SETTINGS_CHANGED")
				if err := g.CompleteTunnels(); err != nil {
					return evFail, err
				}
			}
		}

		if n == 0 {
			s.held = buf
			break
		}

		buf.Filled = n
		buf.Offset = 0
		if s.first {
			buf.Flags = omx.BufferStartTime
			s.first = false
		} else {
			buf.Flags = omx.BufferTimeUnknown
		}
		if err := g.Submit(buf); err != nil {
			return evFail, err
		}
		s.res.Buffers++
		s.res.Bytes += int64(n)
		metrics.ObserveSubmission(n)
	}

	return d.submitEOS(s)
}

// read fills buf from the input. Zero means the input is exhausted. Bytes
// read before a read error are kept; the error ends the input after them.
func (d *Driver) read(s *session, buf *omx.Buffer) int {
	if s.inputEnded {
		return 0
	}
	n, err := io.ReadFull(s.input, buf.Data)
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
	default:
		s.inputEnded = true
		s.logger.Warn().
			Err(err).
			Int("bytes", n).
			Str(log.FieldEvent, "player.read_error").
			Msg("input read failed, ending input")
	}
	if n > 0 {
		d.readLog.Do(func() {
			s.logger.Debug().
				Str(log.FieldEvent, "player.read").
				Int("bytes", n).
				Msg("READ_DATA")
		})
	}
	return n
}

func (d *Driver) submitEOS(s *session) (feedEvent, error) {
	buf := s.held
	s.held = nil
	if buf == nil {
		buf = s.graph.InputBuffer(d.cfg.BufferWait)
	}
	if buf == nil {
		s.logger.Warn().
			Str(log.FieldEvent, "player.eos_skipped").
			Msg("no buffer for end-of-stream marker")
		return evInputEnded, nil
	}
	buf.Filled = 0
	buf.Offset = 0
	buf.Flags = omx.BufferTimeUnknown | omx.BufferEOS
	if err := s.graph.Submit(buf); err != nil {
		return evFail, err
	}
	s.logger.Debug().Str(log.FieldEvent, "player.eos_submitted").Msg("end-of-stream submitted")
	return evInputEnded, nil
}

// drain waits for the render EOS flag in DrainPoll slices, checking the inbox
// between slices.
func (d *Driver) drain(ctx context.Context, s *session) (feedEvent, error) {
	g := s.graph
	if g.TunnelState() != pipeline.TunnelComplete {
		s.logger.Warn().
			Str(log.FieldEvent, "player.drain_skipped").
			Msg("render path never completed, nothing to drain")
		return evDrainEnded, nil
	}

	s.logger.Debug().Str(log.FieldEvent, "player.drain_begin").Msg("BEFOREWAIT")
	var deadline time.Time
	if d.cfg.DrainTimeout > 0 {
		deadline = time.Now().Add(d.cfg.DrainTimeout)
	}
	for {
		err := g.WaitRenderEOS(d.cfg.DrainPoll)
		if err == nil {
			s.logger.Debug().Str(log.FieldEvent, "player.drain_end").Msg("AFTERWAIT")
			return evRenderEOS, nil
		}
		if !errors.Is(err, omx.ErrTimeout) {
			s.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "player.drain_error").
				Msg("render reported an error while draining")
			return evDrainEnded, nil
		}
		d.drainLog.Do(func() {
			s.logger.Debug().Str(log.FieldEvent, "player.drain_wait").Msg("DURINGWAIT")
		})

		if cmd, ok := d.poll(ctx, s); ok {
			s.res.Next = cmd
			return evInterrupt, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			s.logger.Warn().
				Str(log.FieldEvent, "player.drain_timeout").
				Dur("timeout", d.cfg.DrainTimeout).
				Msg("render end-of-stream not seen, giving up")
			return evDrainEnded, nil
		}
	}
}

// poll reports a pending interrupting command. Cancellation of ctx reads as
// Quit. Reserved commands are consumed and ignored.
func (d *Driver) poll(ctx context.Context, s *session) (control.Command, bool) {
	if ctx.Err() != nil {
		return control.QuitCommand(), true
	}
	if d.inbox == nil {
		return control.Command{}, false
	}
	cmd, ok := d.inbox.TryTake()
	if !ok {
		return control.Command{}, false
	}
	if !cmd.Interrupts() {
		s.logger.Info().
			Str(log.FieldEvent, "player.command_ignored").
			Str(log.FieldCommand, cmd.Kind.String()).
			Msg("command not supported during playback")
		return control.Command{}, false
	}
	s.logger.Info().
		Str(log.FieldEvent, "player.interrupted").
		Str(log.FieldCommand, cmd.String()).
		Msg("playback interrupted")
	return cmd, true
}

func (d *Driver) fire(s *session, m *fsm.Machine[FeedState, feedEvent], ev feedEvent) {
	if _, err := m.Fire(ev); err != nil {
		s.logger.Error().Err(err).Str(log.FieldEvent, "player.bad_transition").Msg("feed state machine refused event")
	}
}

func (d *Driver) finish(s *session, state FeedState, start time.Time) {
	if s.graph != nil {
		_ = s.graph.Close()
	}
	if s.input != nil {
		if err := s.input.Close(); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldEvent, "player.input_close").Msg("closing input failed")
		}
	}

	s.res.Outcome = outcomeOf(state)
	s.res.Duration = time.Since(start)
	metrics.IncSession(string(s.res.Outcome))
	metrics.SessionDuration.Observe(s.res.Duration.Seconds())

	s.logger.Info().
		Str(log.FieldEvent, "player.finished").
		Str(log.FieldOutcome, string(s.res.Outcome)).
		Str("next", s.res.Next.String()).
		Int("buffers", s.res.Buffers).
		Int64("bytes", s.res.Bytes).
		Dur("duration", s.res.Duration).
		Msg("playback finished")
}
