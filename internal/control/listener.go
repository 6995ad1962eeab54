// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package control

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/metrics"
	"github.com/rs/zerolog"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"
	"golang.org/x/time/rate"

	// Transports accepted in control URIs.
	_ "go.nanomsg.org/mangos/v3/transport/inproc"
	_ "go.nanomsg.org/mangos/v3/transport/ipc"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

// DefaultPollInterval bounds each receive so a stop request is noticed quickly.
const DefaultPollInterval = 100 * time.Millisecond

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// URI is the bind address, e.g. ipc:///tmp/sv or tcp://0.0.0.0:5555.
	URI string
	// PollInterval bounds a single receive. Zero means DefaultPollInterval.
	PollInterval time.Duration
	// StopAfterFirst reproduces the historical listener that stopped after
	// its first frame. Off by default: the listener keeps receiving.
	StopAfterFirst bool
	Logger         zerolog.Logger
}

// Listener owns the bound control endpoint and is the only writer of its
// Mailbox.
type Listener struct {
	sock    mangos.Socket
	mailbox *Mailbox
	cfg     ListenerConfig
	logger  zerolog.Logger
	ignored rate.Sometimes

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	mu  sync.Mutex
	err error

	received atomic.Uint64
}

// Listen binds the endpoint and starts the receive loop. A bind failure is
// returned immediately; no goroutine is left behind.
func Listen(cfg ListenerConfig, mailbox *Mailbox) (*Listener, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("listen: %w", ErrMissingURI)
	}
	if mailbox == nil {
		return nil, fmt.Errorf("listen: %w", ErrMissingMailbox)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	sock, err := pair.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("create pair socket: %w", err)
	}
	if err := sock.SetOption(mangos.OptionRecvDeadline, cfg.PollInterval); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("set receive deadline: %w", err)
	}
	if err := sock.Listen(cfg.URI); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("bind %s: %w", cfg.URI, err)
	}

	l := &Listener{
		sock:    sock,
		mailbox: mailbox,
		cfg:     cfg,
		logger:  log.WithComponent(cfg.Logger, "listener"),
		ignored: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	l.logger.Info().
		Str(log.FieldEvent, "listener.started").
		Str(log.FieldURI, cfg.URI).
		Dur("poll_interval", cfg.PollInterval).
		Bool("stop_after_first", cfg.StopAfterFirst).
		Msg("control channel listening")

	metrics.SetListenerUp(true)
	go l.run()
	return l, nil
}

func (l *Listener) run() {
	defer close(l.done)
	defer metrics.SetListenerUp(false)

	for {
		select {
		case <-l.stop:
			return
		default:
		}

		frame, err := l.sock.Recv()
		if err != nil {
			if errors.Is(err, mangos.ErrRecvTimeout) {
				continue
			}
			select {
			case <-l.stop:
				// Close raced the receive; not a channel failure.
				return
			default:
			}
			l.fail(err)
			return
		}

		l.received.Add(1)
		l.deliver(Parse(frame), len(frame))

		if l.cfg.StopAfterFirst {
			l.logger.Warn().
				Str(log.FieldEvent, "listener.single_shot_stop").
				Msg("listener stops after first frame (stopAfterFirst enabled)")
			l.fail(ErrSingleShot)
			return
		}
	}
}

func (l *Listener) deliver(cmd Command, size int) {
	metrics.IncControlCommand(cmd.Kind.String())
	// Only quit and play reach the mailbox.
	if !cmd.Interrupts() {
		l.ignored.Do(func() {
			l.logger.Info().
				Str(log.FieldEvent, "listener.frame_ignored").
				Str(log.FieldCommand, cmd.Kind.String()).
				Int("bytes", size).
				Msg("ignoring control frame with no handler")
		})
		return
	}
	l.logger.Info().
		Str(log.FieldEvent, "listener.command").
		Str(log.FieldCommand, cmd.Kind.String()).
		Str(log.FieldPath, cmd.Path).
		Msg("control command received")
	l.mailbox.Set(cmd)
}

func (l *Listener) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	if errors.Is(err, ErrSingleShot) {
		return
	}
	l.logger.Error().
		Err(err).
		Str(log.FieldEvent, "listener.failed").
		Msg("control channel receive failed; no further commands will be delivered")
}

// Err returns the error that ended the receive loop, if any.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done is closed once the receive loop has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Alive reports whether the receive loop is still running.
func (l *Listener) Alive() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Received reports how many frames arrived.
func (l *Listener) Received() uint64 {
	return l.received.Load()
}

// Close stops the loop, waits for it to exit and only then closes the
// endpoint. It is safe to call more than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
		<-l.done
		l.closeErr = l.sock.Close()
		l.logger.Info().
			Str(log.FieldEvent, "listener.closed").
			Uint64("frames", l.received.Load()).
			Msg("control channel closed")
	})
	return l.closeErr
}
