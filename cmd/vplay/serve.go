// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"io"

	"github.com/ManuGH/vplay/internal/config"
	"github.com/ManuGH/vplay/internal/daemon"
	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type serveOptions struct {
	configPath string
	uri        string
	video      string
	backend    string
	logLevel   string
}

// overrides keeps only the flags given on the command line so they do not
// mask file and environment values with their defaults.
func (o *serveOptions) overrides(flags *pflag.FlagSet) config.Overrides {
	var ov config.Overrides
	if flags.Changed("uri") {
		ov.URI = &o.uri
	}
	if flags.Changed("video") {
		ov.InitialFile = &o.video
	}
	if flags.Changed("backend") {
		ov.Backend = &o.backend
	}
	if flags.Changed("log-level") {
		ov.LogLevel = &o.logLevel
	}
	return ov
}

func newServeCmd(stderr io.Writer) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the player daemon",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	f.StringVar(&opts.uri, "uri", config.DefaultControlURI, "control endpoint to bind")
	f.StringVar(&opts.video, "video", "", "file to play before waiting for commands")
	f.StringVar(&opts.backend, "backend", config.BackendILClient, "pipeline backend (ilclient|sim)")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions, stderr io.Writer) error {
	boot := log.New(log.Config{Output: stderr, Version: version.Version})

	loader := config.NewLoader(opts.configPath, boot).WithOverrides(opts.overrides(cmd.Flags()))
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	// The base logger admits every level; the global level is the live gate so
	// a reload can widen it as well as narrow it.
	logger := log.New(log.Config{
		Level:   "trace",
		Format:  cfg.Log.Format,
		Output:  stderr,
		Version: version.Version,
	})
	log.SetGlobalLevel(cfg.Log.Level)

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("commit", version.Commit).
		Str("config", loader.Path()).
		Str("uri", cfg.Control.URI).
		Str("backend", cfg.Playback.Backend).
		Msg("starting vplay")

	app, err := daemon.NewApp(config.NewHolder(cfg, loader, logger), logger)
	if err != nil {
		return err
	}

	ctx, stop := daemon.SignalContext(cmd.Context())
	defer stop()
	return app.Run(ctx)
}
