// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the pipeline backend, control listener, playback
// driver and session loop into one process lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/vplay/internal/config"
	"github.com/ManuGH/vplay/internal/control"
	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/metrics"
	"github.com/ManuGH/vplay/internal/omx"
	"github.com/ManuGH/vplay/internal/player"
	"github.com/ManuGH/vplay/internal/session"
	"github.com/ManuGH/vplay/internal/status"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// App owns the long-lived runtime: the pipeline service, the control
// listener, the session loop and the background exporters.
type App struct {
	holder       *config.Holder
	logger       zerolog.Logger
	svc          omx.Service
	reloadSignal os.Signal
}

// Option customises an App.
type Option func(*App)

// WithService uses svc instead of opening the configured backend. The app
// still closes it on exit.
func WithService(svc omx.Service) Option {
	return func(a *App) { a.svc = svc }
}

// WithReloadSignal sets the signal that triggers a config reload; nil disables it.
func WithReloadSignal(sig os.Signal) Option {
	return func(a *App) { a.reloadSignal = sig }
}

// NewApp creates the orchestrator.
func NewApp(holder *config.Holder, logger zerolog.Logger, opts ...Option) (*App, error) {
	if holder == nil {
		return nil, ErrMissingConfig
	}
	a := &App{
		holder:       holder,
		logger:       log.WithComponent(logger, "daemon"),
		reloadSignal: syscall.SIGHUP,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run blocks until the session loop terminates or ctx is cancelled. It
// returns nil after a Quit (or cancellation) and an error for startup
// failures or a dead control channel.
func (a *App) Run(ctx context.Context) error {
	cfg := a.holder.Get()
	base := a.logger

	svc := a.svc
	if svc == nil {
		var err error
		if svc, err = OpenBackend(cfg, base); err != nil {
			return err
		}
	}
	defer func() {
		if err := svc.Close(); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "daemon.backend_close").Msg("closing pipeline service failed")
		}
	}()

	mailbox := control.NewMailbox()
	listener, err := control.Listen(control.ListenerConfig{
		URI:            cfg.Control.URI,
		PollInterval:   cfg.Control.PollInterval,
		StopAfterFirst: cfg.Control.StopAfterFirst,
		Logger:         base,
	}, mailbox)
	if err != nil {
		return fmt.Errorf("control channel: %w", err)
	}
	defer func() { _ = listener.Close() }()

	driver, err := player.New(svc, mailbox, PlayerConfig(cfg), base)
	if err != nil {
		return err
	}
	reporter := status.NewSwitch(status.NewFile(cfg.Status.File, base))
	reloads := make(chan config.Config, 1)
	a.holder.RegisterListener(reloads)

	loop := session.New(driver, mailbox, session.Config{
		InitialFile: cfg.Playback.InitialFile,
		IdleWait:    cfg.Playback.IdleWait,
	}, base,
		session.WithListener(listener),
		session.WithReporter(reporter),
	)

	a.logger.Info().
		Str(log.FieldEvent, "daemon.started").
		Str(log.FieldURI, cfg.Control.URI).
		Str("backend", cfg.Playback.Backend).
		Str(log.FieldPath, cfg.Playback.InitialFile).
		Msg("player ready")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return loop.Run(gctx)
	})

	g.Go(func() error {
		return metrics.RunTextfileExporter(gctx, cfg.Metrics.Textfile, cfg.Metrics.Interval, log.WithComponent(base, "metrics"))
	})

	// Config watcher is best-effort: a failure leaves the startup config in place.
	g.Go(func() error {
		if err := a.holder.Watch(gctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		return nil
	})

	g.Go(func() error {
		a.applyReloads(gctx, reloads, reporter, cfg.Status.File)
		return nil
	})

	if a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-gctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					_ = a.holder.Reload()
				}
			}
		})
	}

	err = g.Wait()
	switch {
	case err == nil:
		a.logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("player stopped")
	case errors.Is(err, session.ErrControlChannelDead):
		a.logger.Error().Err(err).Str(log.FieldEvent, "daemon.control_dead").Msg("player stopped: control channel dead")
	default:
		a.logger.Error().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("player stopped with error")
	}
	return err
}

// applyReloads retargets the status reporter when status.file changes.
func (a *App) applyReloads(ctx context.Context, reloads <-chan config.Config, reporter *status.Switch, path string) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-reloads:
			if cfg.Status.File == path {
				continue
			}
			path = cfg.Status.File
			reporter.Replace(status.NewFile(path, a.logger))
			a.logger.Info().
				Str(log.FieldEvent, "daemon.status_file_changed").
				Str(log.FieldPath, path).
				Msg("status reporter retargeted")
		}
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
