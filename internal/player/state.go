// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import "github.com/ManuGH/vplay/internal/pipeline/fsm"

// FeedState is the driver's position in a single playback.
type FeedState string

const (
	StateFeeding     FeedState = "feeding"
	StateDrainingEOS FeedState = "draining_eos"
	StateDone        FeedState = "done"
	StateInterrupted FeedState = "interrupted"
	StateFailed      FeedState = "failed"
)

type feedEvent string

const (
	evInputEnded feedEvent = "input_ended"
	evInterrupt  feedEvent = "interrupt"
	evRenderEOS  feedEvent = "render_eos"
	evDrainEnded feedEvent = "drain_ended"
	evFail       feedEvent = "fail"
)

var feedTransitions = []fsm.Transition[FeedState, feedEvent]{
	{From: StateFeeding, Event: evInputEnded, To: StateDrainingEOS},
	{From: StateFeeding, Event: evInterrupt, To: StateInterrupted},
	{From: StateFeeding, Event: evFail, To: StateFailed},
	{From: StateDrainingEOS, Event: evRenderEOS, To: StateDone},
	{From: StateDrainingEOS, Event: evDrainEnded, To: StateDone},
	{From: StateDrainingEOS, Event: evInterrupt, To: StateInterrupted},
	{From: StateDrainingEOS, Event: evFail, To: StateFailed},
}

func newFeedMachine() *fsm.Machine[FeedState, feedEvent] {
	return fsm.MustNew(StateFeeding, feedTransitions)
}

// Outcome is how a playback ended.
type Outcome string

const (
	OutcomeDone        Outcome = "done"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeFailed      Outcome = "failed"
)

func outcomeOf(s FeedState) Outcome {
	switch s {
	case StateDone:
		return OutcomeDone
	case StateInterrupted:
		return OutcomeInterrupted
	default:
		return OutcomeFailed
	}
}
