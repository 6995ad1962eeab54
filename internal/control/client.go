// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package control

import (
	"errors"
	"fmt"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"
)

// Client is the peer end of the control channel.
type Client struct {
	sock mangos.Socket
}

// Dial connects to a listening player. timeout bounds each Send.
func Dial(uri string, timeout time.Duration) (*Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("dial: %w", ErrMissingURI)
	}
	sock, err := pair.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("create pair socket: %w", err)
	}
	if timeout > 0 {
		if err := sock.SetOption(mangos.OptionSendDeadline, timeout); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("set send deadline: %w", err)
		}
	}
	if err := sock.Dial(uri); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("dial %s: %w", uri, err)
	}
	return &Client{sock: sock}, nil
}

// Send writes cmd as a single frame.
func (c *Client) Send(cmd Command) error {
	frame := cmd.Encode()
	if len(frame) == 0 {
		return errors.New("refusing to send empty command")
	}
	if err := c.sock.Send(frame); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// SendRaw writes an arbitrary frame.
func (c *Client) SendRaw(frame []byte) error {
	if err := c.sock.Send(frame); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.sock.Close()
}
