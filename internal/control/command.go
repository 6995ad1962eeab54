// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package control carries playback intents from the control channel to the
// player: the frame codec, the single-slot Mailbox, the Listener that owns the
// bound endpoint and the Client used to send frames to it.
package control

import (
	"bytes"
	"fmt"
)

// Kind tags a Command.
type Kind int

const (
	// NoOp means no command is pending.
	NoOp Kind = iota
	Quit
	Play
	// Pause and Resume are reserved; the player treats them as no-ops.
	Pause
	Resume
)

func (k Kind) String() string {
	switch k {
	case NoOp:
		return "noop"
	case Quit:
		return "quit"
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command is one decoded control frame. Path is only meaningful for Play.
type Command struct {
	Kind Kind
	Path string
}

// QuitCommand and PlayCommand build the two commands the player acts on.
func QuitCommand() Command { return Command{Kind: Quit} }

func PlayCommand(path string) Command { return Command{Kind: Play, Path: path} }

// IsNoOp reports whether c carries nothing to act on.
func (c Command) IsNoOp() bool { return c.Kind == NoOp }

// Interrupts reports whether c pre-empts a running playback session.
func (c Command) Interrupts() bool { return c.Kind == Quit || c.Kind == Play }

func (c Command) String() string {
	if c.Kind == Play {
		return "play=" + c.Path
	}
	return c.Kind.String()
}

// Encode renders c as a wire frame.
func (c Command) Encode() []byte {
	switch c.Kind {
	case NoOp:
		return nil
	case Play:
		return []byte("play=" + c.Path)
	default:
		return []byte(c.Kind.String())
	}
}

// Parse decodes a `command[=payload]` frame. Unrecognised commands and a play
// without a path decode to NoOp.
func Parse(frame []byte) Command {
	frame = bytes.TrimRight(frame, "\x00\r\n")

	name, payload, _ := bytes.Cut(frame, []byte("="))
	switch string(name) {
	case "quit":
		return QuitCommand()
	case "play":
		if len(payload) == 0 {
			return Command{}
		}
		return PlayCommand(string(payload))
	case "pause":
		return Command{Kind: Pause}
	case "resume", "continue":
		return Command{Kind: Resume}
	default:
		return Command{}
	}
}
