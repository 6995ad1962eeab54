// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/vplay/internal/config"
	"github.com/ManuGH/vplay/internal/control"
	"github.com/spf13/cobra"
)

// sendLinger keeps the socket open after Send; Close discards frames still
// queued on the pipe.
const sendLinger = 100 * time.Millisecond

func newSendCmd() *cobra.Command {
	var (
		uri     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send [quit|pause|resume|play=<path>|<path>]",
		Short: "Send one command to a running player",
		Long: "Send one command to a running player. Without an argument it sends quit; " +
			"control words are sent as-is and any other argument is expanded to an absolute path " +
			"and sent as play=<path> (use ./quit for a file named quit).",
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			c, err := parseSendArg(arg, os.UserHomeDir)
			if err != nil {
				return usageError{err: err}
			}
			if !cmd.Flags().Changed("uri") {
				if v, ok := os.LookupEnv(config.EnvControlURI); ok && v != "" {
					uri = v
				}
			}
			if err := send(uri, timeout, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", c, uri)
			return nil
		},
	}
	cmd.Flags().StringVar(&uri, "uri", config.DefaultControlURI, "control endpoint of the player")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "send deadline")
	return cmd
}

func send(uri string, timeout time.Duration, c control.Command) error {
	client, err := control.Dial(uri, timeout)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Send(c); err != nil {
		return err
	}
	time.Sleep(sendLinger)
	return nil
}

// parseSendArg maps the client argument to a command. Control words (quit,
// pause, resume, continue) are sent as themselves; anything else is a path.
func parseSendArg(arg string, home func() (string, error)) (control.Command, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return control.QuitCommand(), nil
	}
	if rest, ok := strings.CutPrefix(arg, "play="); ok {
		if rest == "" {
			return control.Command{}, errors.New("play needs a path")
		}
		arg = rest
	} else if c := control.Parse([]byte(arg)); !c.IsNoOp() {
		return c, nil
	}
	p, err := normalizePath(arg, home)
	if err != nil {
		return control.Command{}, err
	}
	return control.PlayCommand(p), nil
}

// normalizePath expands a leading ~ and returns a clean absolute path.
func normalizePath(p string, home func() (string, error)) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		h, err := home()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", p, err)
		}
		p = filepath.Join(h, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}
