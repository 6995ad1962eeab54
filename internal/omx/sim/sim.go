// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sim is an in-memory model of the video core pipeline service.
//
// It enforces the rules the real components enforce (adjacent state
// transitions, no tunnel onto an enabled port, buffers only on enabled pools)
// and raises the two data-dependent events the player depends on: port
// settings changed after a configurable number of decoded buffers, and the
// render end-of-stream flag once an EOS buffer reaches a fully tunneled,
// executing render. Every call is appended to a trace for test assertions.
package sim

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/vplay/internal/omx"
	"github.com/rs/zerolog"
)

// Options configure the simulated hardware.
type Options struct {
	BufferSize    int           // decode input buffer allocation (default 80 KiB)
	BufferCount   int           // decode input pool size (default 4)
	SettingsAfter int           // non-empty buffers before port settings change; <0 never
	EOSDelay      time.Duration // delay between EOS submission and render acknowledgement
	MaxLive       int           // live component limit (default 4, one graph)
	Logger        zerolog.Logger
}

// Submission is one buffer handed to a component.
type Submission struct {
	Role   omx.Role
	Filled int
	Flags  omx.BufferFlags
	Data   []byte
}

// Service implements omx.Service.
type Service struct {
	opts   Options
	logger zerolog.Logger

	mu          sync.Mutex
	changed     chan struct{}
	trace       []string
	failures    map[string]error
	components  []*Component
	tunnels     map[string]bool
	submissions []Submission
	live        int
	maxLive     int
	closed      bool
}

var _ omx.Service = (*Service)(nil)

// New returns a simulated service with defaults applied.
func New(opts Options) *Service {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 80 * 1024
	}
	if opts.BufferCount <= 0 {
		opts.BufferCount = 4
	}
	if opts.SettingsAfter == 0 {
		opts.SettingsAfter = 1
	}
	if opts.MaxLive <= 0 {
		opts.MaxLive = 4
	}
	return &Service{
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "omx.sim").Logger(),
		changed:  make(chan struct{}),
		failures: make(map[string]error),
		tunnels:  make(map[string]bool),
	}
}

// FailOn makes the operation identified by op return err. Keys:
//
//	create:<role>           clock:<role>           format:<role>
//	buffers:<role>          state:<role>:<state>   tunnel:<src>-><sink>
//	submit:<role>           eos:<role>             wait:<role>:<event>
func (s *Service) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Trace returns a copy of the recorded calls.
func (s *Service) Trace() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.trace...)
}

// Submissions returns every buffer submitted so far.
func (s *Service) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

// Live reports how many components are created and not yet released.
func (s *Service) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// MaxLiveObserved reports the highest number of simultaneously live components.
func (s *Service) MaxLiveObserved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxLive
}

// Components returns every component ever created, in creation order.
func (s *Service) Components() []*Component {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Component(nil), s.components...)
}

// Closed reports whether Close was called.
func (s *Service) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Service) record(format string, args ...any) {
	s.trace = append(s.trace, fmt.Sprintf(format, args...))
}

func (s *Service) failure(op string) error {
	if err, ok := s.failures[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// broadcast wakes every waiter. Caller holds s.mu.
func (s *Service) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Service) CreateComponent(role omx.Role, flags omx.CreateFlags) (omx.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("create %s", role)
	if err := s.failure("create:" + string(role)); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, fmt.Errorf("create %s: %w", role, omx.ErrUnavailable)
	}
	if s.live >= s.opts.MaxLive {
		return nil, fmt.Errorf("create %s: %d components live: %w", role, s.live, omx.ErrRefused)
	}

	c := &Component{
		svc:         s,
		role:        role,
		flags:       flags,
		state:       omx.StateLoaded,
		enabled:     make(map[omx.Port]bool),
		pools:       make(map[omx.Port]chan *omx.Buffer),
		pending:     make(map[eventKey]int),
		portFormats: make(map[omx.Port]omx.Coding),
	}
	s.components = append(s.components, c)
	s.live++
	if s.live > s.maxLive {
		s.maxLive = s.live
	}
	return c, nil
}

func tunnelKey(t *omx.Tunnel) string {
	return t.String()
}

func (s *Service) SetupTunnel(t *omx.Tunnel, timeout time.Duration) error {
	src, sink, err := tunnelEnds(t)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := tunnelKey(t)
	s.record("tunnel setup %s timeout=%s", key, timeout)
	if err := s.failure("tunnel:" + string(src.role) + "->" + string(sink.role)); err != nil {
		return err
	}
	if src.released || sink.released {
		return fmt.Errorf("tunnel %s: released component: %w", key, omx.ErrRefused)
	}
	if src.enabled[t.SourcePort] || sink.enabled[t.SinkPort] {
		return fmt.Errorf("tunnel %s: port already enabled: %w", key, omx.ErrRefused)
	}
	for _, c := range []*Component{src, sink} {
		if c.state == omx.StateLoaded {
			c.state = omx.StateIdle
		}
	}
	src.enabled[t.SourcePort] = true
	sink.enabled[t.SinkPort] = true
	s.tunnels[key] = true
	return nil
}

func (s *Service) FlushTunnels(ts []*omx.Tunnel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("tunnel flush %s", joinTunnels(ts))
}

func (s *Service) DisableTunnel(t *omx.Tunnel) {
	src, sink, err := tunnelEnds(t)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("tunnel disable %s", tunnelKey(t))
	src.enabled[t.SourcePort] = false
	sink.enabled[t.SinkPort] = false
}

func (s *Service) TeardownTunnels(ts []*omx.Tunnel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("tunnel teardown %s", joinTunnels(ts))
	for _, t := range ts {
		delete(s.tunnels, tunnelKey(t))
	}
}

func (s *Service) StateTransition(cs []omx.Component, target omx.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("transition %s %s", target, joinRoles(cs))
	for _, oc := range cs {
		c, ok := oc.(*Component)
		if !ok || c.released || c.state == target {
			continue
		}
		if adjacent(c.state, target) {
			c.state = target
		}
	}
}

func (s *Service) CleanupComponents(cs []omx.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("cleanup %s", joinRoles(cs))
	for _, oc := range cs {
		c, ok := oc.(*Component)
		if !ok || c.released {
			continue
		}
		c.released = true
		s.live--
	}
	s.broadcast()
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("close")
	s.closed = true
	return nil
}

// renderReady reports whether an EOS entering the decoder can reach an
// executing render. Caller holds s.mu.
func (s *Service) renderReady() (*Component, bool) {
	var sched, render *Component
	for _, c := range s.components {
		if c.released {
			continue
		}
		switch c.role {
		case omx.RoleVideoScheduler:
			sched = c
		case omx.RoleVideoRender:
			render = c
		}
	}
	if sched == nil || render == nil || render.state != omx.StateExecuting {
		return nil, false
	}
	if !sched.enabled[omx.PortSchedulerInput] || !sched.enabled[omx.PortSchedulerOutput] || !render.enabled[omx.PortRenderInput] {
		return nil, false
	}
	return render, true
}

func tunnelEnds(t *omx.Tunnel) (*Component, *Component, error) {
	if t == nil {
		return nil, nil, fmt.Errorf("nil tunnel: %w", omx.ErrRefused)
	}
	src, ok1 := t.Source.(*Component)
	sink, ok2 := t.Sink.(*Component)
	if !ok1 || !ok2 || src == nil || sink == nil {
		return nil, nil, fmt.Errorf("tunnel %s: foreign or unset component: %w", t, omx.ErrRefused)
	}
	return src, sink, nil
}

func adjacent(from, to omx.State) bool {
	d := int(from) - int(to)
	return d == 1 || d == -1
}

func joinTunnels(ts []*omx.Tunnel) string {
	parts := make([]string, 0, len(ts))
	for _, t := range ts {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, ",")
}

func joinRoles(cs []omx.Component) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, string(c.Role()))
	}
	return strings.Join(parts, ",")
}
