// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sim

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/vplay/internal/omx"
)

type eventKey struct {
	ev   omx.Event
	port omx.Port
}

// Component implements omx.Component. All fields are guarded by svc.mu.
type Component struct {
	svc   *Service
	role  omx.Role
	flags omx.CreateFlags

	state       omx.State
	released    bool
	enabled     map[omx.Port]bool
	pools       map[omx.Port]chan *omx.Buffer
	pending     map[eventKey]int
	portFormats map[omx.Port]omx.Coding
	clockMask   uint32
	decoded     int
}

var _ omx.Component = (*Component)(nil)

func (c *Component) Role() omx.Role { return c.role }

func (c *Component) State() omx.State {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	return c.state
}

// Released reports whether the component handle was cleaned up.
func (c *Component) Released() bool {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	return c.released
}

// PortEnabled reports whether a tunnel or buffer pool enabled port.
func (c *Component) PortEnabled(port omx.Port) bool {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	return c.enabled[port]
}

// Post injects an event, as the hardware would.
func (c *Component) Post(ev omx.Event, port omx.Port) {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	c.post(ev, port)
}

// post queues ev. Caller holds svc.mu.
func (c *Component) post(ev omx.Event, port omx.Port) {
	c.pending[eventKey{ev: ev, port: port}]++
	c.svc.broadcast()
}

func (c *Component) ChangeState(target omx.State) error {
	s := c.svc
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("state %s %s", c.role, target)
	if err := s.failure(fmt.Sprintf("state:%s:%s", c.role, target)); err != nil {
		return err
	}
	if c.released {
		return fmt.Errorf("state %s: released: %w", c.role, omx.ErrRefused)
	}
	if c.state == target {
		return nil
	}
	if !adjacent(c.state, target) {
		return fmt.Errorf("state %s %s->%s: %w", c.role, c.state, target, omx.ErrRefused)
	}
	c.state = target
	return nil
}

func (c *Component) SetClockWaiting(waitMask uint32) error {
	s := c.svc
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("clock %s wait mask=%d", c.role, waitMask)
	if err := s.failure("clock:" + string(c.role)); err != nil {
		return err
	}
	if c.role != omx.RoleClock {
		return fmt.Errorf("clock state on %s: %w", c.role, omx.ErrRefused)
	}
	c.clockMask = waitMask
	return nil
}

func (c *Component) SetPortFormat(port omx.Port, coding omx.Coding) error {
	s := c.svc
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("format %s:%d %s", c.role, port, coding)
	if err := s.failure("format:" + string(c.role)); err != nil {
		return err
	}
	c.portFormats[port] = coding
	return nil
}

func (c *Component) EnablePortBuffers(port omx.Port) error {
	s := c.svc
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("buffers enable %s:%d", c.role, port)
	if err := s.failure("buffers:" + string(c.role)); err != nil {
		return err
	}
	if c.flags&omx.FlagEnableInputBuffers == 0 {
		return fmt.Errorf("buffers %s:%d: created without input buffers: %w", c.role, port, omx.ErrRefused)
	}
	if c.state == omx.StateLoaded {
		return fmt.Errorf("buffers %s:%d: component loaded: %w", c.role, port, omx.ErrRefused)
	}
	if c.enabled[port] {
		return fmt.Errorf("buffers %s:%d: port already enabled: %w", c.role, port, omx.ErrRefused)
	}
	pool := make(chan *omx.Buffer, s.opts.BufferCount)
	for i := 0; i < s.opts.BufferCount; i++ {
		pool <- &omx.Buffer{Data: make([]byte, s.opts.BufferSize), Native: port}
	}
	c.pools[port] = pool
	c.enabled[port] = true
	return nil
}

func (c *Component) DisablePortBuffers(port omx.Port) {
	s := c.svc
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("buffers disable %s:%d", c.role, port)
	delete(c.pools, port)
	c.enabled[port] = false
}

func (c *Component) InputBuffer(port omx.Port, wait time.Duration) *omx.Buffer {
	s := c.svc
	s.mu.Lock()
	pool, ok := c.pools[port]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case b := <-pool:
		return reset(b)
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case b := <-pool:
		return reset(b)
	case <-timer.C:
		return nil
	}
}

func reset(b *omx.Buffer) *omx.Buffer {
	b.Filled, b.Offset, b.Flags = 0, 0, 0
	return b
}

func (c *Component) EmptyBuffer(b *omx.Buffer) error {
	s := c.svc
	s.mu.Lock()
	defer s.mu.Unlock()

	op := "submit:"
	if b.Flags.Has(omx.BufferEOS) {
		op = "eos:"
	}
	s.record("submit %s filled=%d flags=%s", c.role, b.Filled, flagString(b.Flags))
	if err := s.failure(op + string(c.role)); err != nil {
		return err
	}
	if c.released || c.state != omx.StateExecuting {
		return fmt.Errorf("submit %s in state %s: %w", c.role, c.state, omx.ErrRefused)
	}
	if b.Filled < 0 || b.Offset+b.Filled > len(b.Data) {
		return fmt.Errorf("submit %s: filled %d exceeds capacity %d: %w", c.role, b.Filled, len(b.Data), omx.ErrRefused)
	}

	s.submissions = append(s.submissions, Submission{
		Role:   c.role,
		Filled: b.Filled,
		Flags:  b.Flags,
		Data:   append([]byte(nil), b.Data[b.Offset:b.Offset+b.Filled]...),
	})

	if b.Filled > 0 {
		c.decoded++
		if s.opts.SettingsAfter > 0 && c.decoded == s.opts.SettingsAfter {
			c.post(omx.EventPortSettingsChanged, omx.PortDecodeOutput)
		}
	}
	if b.Flags.Has(omx.BufferEOS) {
		if render, ok := s.renderReady(); ok {
			if s.opts.EOSDelay > 0 {
				time.AfterFunc(s.opts.EOSDelay, func() { render.Post(omx.EventBufferFlagEOS, omx.PortRenderInput) })
			} else {
				render.post(omx.EventBufferFlagEOS, omx.PortRenderInput)
			}
		}
	}

	// The buffer is consumed immediately and returned to its pool.
	if port, ok := b.Native.(omx.Port); ok {
		if pool, ok := c.pools[port]; ok {
			select {
			case pool <- b:
			default:
			}
		}
	}
	return nil
}

func (c *Component) RemoveEvent(ev omx.Event, port omx.Port) bool {
	s := c.svc
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.take(eventKey{ev: ev, port: port})
}

// take consumes one pending event. Caller holds svc.mu.
func (c *Component) take(k eventKey) bool {
	if c.pending[k] == 0 {
		return false
	}
	c.pending[k]--
	return true
}

func (c *Component) WaitForEvent(ev omx.Event, port omx.Port, timeout time.Duration) error {
	s := c.svc
	k := eventKey{ev: ev, port: port}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if err := s.failure(fmt.Sprintf("wait:%s:%s", c.role, ev)); err != nil {
			s.mu.Unlock()
			return err
		}
		if c.take(k) {
			s.mu.Unlock()
			return nil
		}
		if c.released {
			s.mu.Unlock()
			return fmt.Errorf("wait %s on %s: released: %w", ev, c.role, omx.ErrRefused)
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return fmt.Errorf("wait %s on %s:%d: %w", ev, c.role, port, omx.ErrTimeout)
		}
	}
}

func flagString(f omx.BufferFlags) string {
	var parts []string
	if f.Has(omx.BufferStartTime) {
		parts = append(parts, "starttime")
	}
	if f.Has(omx.BufferTimeUnknown) {
		parts = append(parts, "timeunknown")
	}
	if f.Has(omx.BufferEOS) {
		parts = append(parts, "eos")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
