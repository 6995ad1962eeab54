// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package omx

import "time"

// Service is the hardware pipeline service. Every call is synchronous. The
// list operations are best effort and report nothing, matching the IL client.
type Service interface {
	// CreateComponent creates a component in the Loaded state.
	CreateComponent(role Role, flags CreateFlags) (Component, error)

	// SetupTunnel enables both tunnel ports and moves Loaded endpoints to
	// Idle. timeout bounds the wait for the sink port to become enabled; zero
	// means the backend default.
	SetupTunnel(t *Tunnel, timeout time.Duration) error

	FlushTunnels(ts []*Tunnel)
	DisableTunnel(t *Tunnel)
	TeardownTunnels(ts []*Tunnel)

	// StateTransition moves every component to s.
	StateTransition(cs []Component, s State)

	// CleanupComponents releases the handles. They must not be used afterwards.
	CleanupComponents(cs []Component)

	// Close shuts the hardware subsystem down.
	Close() error
}

// Component is a handle to a single hardware component.
type Component interface {
	Role() Role
	State() State

	// ChangeState requests a single transition and waits for it to complete.
	ChangeState(s State) error

	// SetClockWaiting configures a clock component to wait for a start time on
	// the ports selected by waitMask.
	SetClockWaiting(waitMask uint32) error

	SetPortFormat(port Port, coding Coding) error
	EnablePortBuffers(port Port) error
	DisablePortBuffers(port Port)

	// InputBuffer returns a free buffer on port, waiting up to wait. It
	// returns nil when none became available.
	InputBuffer(port Port, wait time.Duration) *Buffer

	// EmptyBuffer submits b to the component.
	EmptyBuffer(b *Buffer) error

	// RemoveEvent consumes a pending event without waiting.
	RemoveEvent(ev Event, port Port) bool

	// WaitForEvent blocks until ev is observed on port or timeout elapses,
	// returning ErrTimeout in the latter case.
	WaitForEvent(ev Event, port Port, timeout time.Duration) error
}
