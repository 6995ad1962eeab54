// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"errors"

	"github.com/ManuGH/vplay/internal/pipeline/fsm"
)

// ErrControlChannelDead is returned when the loop is idle and no command can
// ever arrive again.
var ErrControlChannelDead = errors.New("control channel is dead")

// State is the session loop position.
type State string

const (
	StateIdle       State = "idle"
	StatePlaying    State = "playing"
	StateTerminated State = "terminated"
)

type loopEvent string

const (
	evPlay        loopEvent = "play"
	evQuit        loopEvent = "quit"
	evFinished    loopEvent = "finished"
	evControlDead loopEvent = "control_dead"
)

var loopTransitions = []fsm.Transition[State, loopEvent]{
	{From: StateIdle, Event: evPlay, To: StatePlaying},
	{From: StateIdle, Event: evQuit, To: StateTerminated},
	{From: StateIdle, Event: evControlDead, To: StateTerminated},
	{From: StatePlaying, Event: evPlay, To: StatePlaying},
	{From: StatePlaying, Event: evQuit, To: StateTerminated},
	{From: StatePlaying, Event: evFinished, To: StateIdle},
}
