// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session runs the Idle / Playing / Terminated loop on top of the
// playback driver and the control mailbox.
package session

import (
	"context"
	"time"

	"github.com/ManuGH/vplay/internal/control"
	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/pipeline/fsm"
	"github.com/ManuGH/vplay/internal/player"
	"github.com/ManuGH/vplay/internal/status"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Player plays one file; it returns only after the pipeline is torn down.
type Player interface {
	Play(ctx context.Context, path string) (player.Result, error)
}

// Inbox is the consumer side of the control mailbox.
type Inbox interface {
	TryTake() (control.Command, bool)
	WaitTake(timeout time.Duration) control.Command
}

// ListenerHealth exposes whether commands can still arrive.
type ListenerHealth interface {
	Alive() bool
	Done() <-chan struct{}
	Err() error
}

// Config for the loop.
type Config struct {
	// InitialFile, when set, is played before any command is awaited.
	InitialFile string
	// IdleWait bounds one blocking mailbox wait while idle.
	IdleWait time.Duration
}

// Loop is the session state machine. Run it from one goroutine.
type Loop struct {
	player   Player
	inbox    Inbox
	cfg      Config
	listener ListenerHealth
	reporter status.Reporter
	logger   zerolog.Logger

	m *fsm.Machine[State, loopEvent]
}

// Option customises a Loop.
type Option func(*Loop)

// WithListener lets the loop detect a dead control channel.
func WithListener(h ListenerHealth) Option {
	return func(l *Loop) { l.listener = h }
}

// WithReporter publishes every transition.
func WithReporter(r status.Reporter) Option {
	return func(l *Loop) {
		if r != nil {
			l.reporter = r
		}
	}
}

// New builds a loop in Idle.
func New(p Player, inbox Inbox, cfg Config, logger zerolog.Logger, opts ...Option) *Loop {
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = time.Second
	}
	l := &Loop{
		player:   p,
		inbox:    inbox,
		cfg:      cfg,
		reporter: status.Nop(),
		logger:   log.WithComponent(logger, "session"),
		m:        fsm.MustNew(StateIdle, loopTransitions),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.m.Observe(func(from, to State, ev loopEvent) {
		l.logger.Info().
			Str(log.FieldEvent, "session.transition").
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Str("trigger", string(ev)).
			Msg("session state changed")
	})
	return l
}

// State reports the current loop state.
func (l *Loop) State() State {
	return l.m.State()
}

// Run drives the loop until Quit, cancellation of ctx (treated as Quit) or a
// dead control channel while idle.
func (l *Loop) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	l.watchListener(ctx, stop)

	var pending control.Command
	if l.cfg.InitialFile != "" {
		pending = control.PlayCommand(l.cfg.InitialFile)
	} else {
		l.report(status.Snapshot{State: status.StateIdle})
	}

	for {
		if pending.IsNoOp() {
			cmd, err := l.await(ctx)
			if err != nil {
				l.fire(evControlDead)
				l.report(status.Snapshot{State: status.StateTerminated})
				return err
			}
			if cmd.IsNoOp() {
				continue
			}
			pending = cmd
		}

		switch pending.Kind {
		case control.Quit:
			l.fire(evQuit)
			l.report(status.Snapshot{State: status.StateTerminated})
			l.logger.Info().Str(log.FieldEvent, "session.quit").Msg("quit requested")
			return nil

		case control.Play:
			pending = l.play(ctx, pending.Path)
			if pending.IsNoOp() {
				l.fire(evFinished)
				l.report(status.Snapshot{State: status.StateIdle})
			}

		default:
			l.logger.Info().
				Str(log.FieldEvent, "session.command_ignored").
				Str(log.FieldCommand, pending.Kind.String()).
				Msg("command not supported")
			pending = control.Command{}
		}
	}
}

// await returns the next command while idle, NoOp when the wait lapsed.
func (l *Loop) await(ctx context.Context) (control.Command, error) {
	if ctx.Err() != nil {
		return control.QuitCommand(), nil
	}
	if cmd, ok := l.inbox.TryTake(); ok {
		return cmd, nil
	}
	if l.listener != nil && !l.listener.Alive() {
		l.logger.Error().
			Err(l.listener.Err()).
			Str(log.FieldEvent, "session.control_dead").
			Msg("control channel is dead while idle, stopping")
		return control.Command{}, ErrControlChannelDead
	}
	return l.inbox.WaitTake(l.cfg.IdleWait), nil
}

// play runs one file and returns the command that interrupted it.
func (l *Loop) play(ctx context.Context, path string) control.Command {
	l.fire(evPlay)
	id := uuid.NewString()
	l.report(status.Snapshot{State: status.StatePlaying, File: path, SessionID: id})

	res, err := l.player.Play(log.ContextWithSessionID(ctx, id), path)
	if err != nil {
		l.logger.Error().
			Err(err).
			Str(log.FieldEvent, "session.play_failed").
			Str(log.FieldSessionID, id).
			Str(log.FieldPath, path).
			Msg("playback session failed")
	}
	return res.Next
}

func (l *Loop) watchListener(ctx context.Context, stop <-chan struct{}) {
	if l.listener == nil {
		return
	}
	go func() {
		select {
		case <-l.listener.Done():
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
		if l.m.State() == StatePlaying {
			l.logger.Warn().
				Err(l.listener.Err()).
				Str(log.FieldEvent, "session.control_dead").
				Msg("control channel died during playback; playback continues")
		}
	}()
}

func (l *Loop) fire(ev loopEvent) {
	if _, err := l.m.Fire(ev); err != nil {
		l.logger.Error().Err(err).Str(log.FieldEvent, "session.bad_transition").Msg("session state machine refused event")
	}
}

func (l *Loop) report(s status.Snapshot) {
	l.reporter.Report(s)
}
