// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package control

import (
	"sync"
	"time"

	"github.com/ManuGH/vplay/internal/metrics"
)

// Mailbox holds at most one pending Command. A Set before the previous value
// was taken replaces it; there is no queue.
//
// Set is called by the listener goroutine only, TryTake and WaitTake by the
// playback goroutine only.
type Mailbox struct {
	mu      sync.Mutex
	pending *Command
	// wake has capacity one so Set never blocks and a waiter that has not
	// started waiting yet still sees the signal.
	wake chan struct{}

	overwrites uint64
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{wake: make(chan struct{}, 1)}
}

// Set stores cmd, discarding any unread value, and wakes a blocked waiter.
func (m *Mailbox) Set(cmd Command) {
	m.mu.Lock()
	if m.pending != nil {
		m.overwrites++
		metrics.MailboxOverwrites.Inc()
	}
	m.pending = &cmd
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// TryTake returns and clears the pending command without blocking.
func (m *Mailbox) TryTake() (Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return Command{}, false
	}
	cmd := *m.pending
	m.pending = nil
	return cmd, true
}

// WaitTake blocks until a command is available or timeout elapses. On timeout
// it returns a NoOp command.
func (m *Mailbox) WaitTake(timeout time.Duration) Command {
	if cmd, ok := m.TryTake(); ok {
		return cmd
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-m.wake:
			// The signal may belong to a value already taken by TryTake.
			if cmd, ok := m.TryTake(); ok {
				return cmd
			}
		case <-timer.C:
			if cmd, ok := m.TryTake(); ok {
				return cmd
			}
			return Command{}
		}
	}
}

// Overwrites reports how many pending commands were discarded unread.
func (m *Mailbox) Overwrites() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overwrites
}
