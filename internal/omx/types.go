// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package omx

import "fmt"

// State is the lifecycle state of a hardware component.
type State int

const (
	StateLoaded State = iota
	StateIdle
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Role is the well-known name a component is created under.
type Role string

const (
	RoleVideoDecode    Role = "video_decode"
	RoleVideoScheduler Role = "video_scheduler"
	RoleVideoRender    Role = "video_render"
	RoleClock          Role = "clock"
)

// Port is a component port index.
type Port uint32

// Port indices of the Broadcom video components.
const (
	PortDecodeInput     Port = 130
	PortDecodeOutput    Port = 131
	PortSchedulerInput  Port = 10
	PortSchedulerOutput Port = 11
	PortSchedulerClock  Port = 12
	PortRenderInput     Port = 90
	PortClockOutput     Port = 80
)

// Coding is a video compression format negotiated on a decoder input port.
type Coding int

const (
	CodingAVC Coding = iota + 1
)

func (c Coding) String() string {
	if c == CodingAVC {
		return "avc"
	}
	return fmt.Sprintf("coding(%d)", int(c))
}

// CreateFlags control how a component is created.
type CreateFlags uint32

const (
	FlagDisableAllPorts CreateFlags = 1 << iota
	FlagEnableInputBuffers
)

// BufferFlags mark a submitted buffer.
type BufferFlags uint32

const (
	BufferStartTime BufferFlags = 1 << iota
	BufferTimeUnknown
	BufferEOS
)

// Has reports whether all bits of f are set.
func (b BufferFlags) Has(f BufferFlags) bool {
	return b&f == f
}

// Event is a named port event a caller can consume or wait for.
type Event int

const (
	// EventPortSettingsChanged fires once the decoder knows its output geometry.
	EventPortSettingsChanged Event = iota + 1
	// EventBufferFlagEOS fires when a buffer flagged end-of-stream reaches a port.
	EventBufferFlagEOS
)

func (e Event) String() string {
	switch e {
	case EventPortSettingsChanged:
		return "port_settings_changed"
	case EventBufferFlagEOS:
		return "buffer_flag_eos"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Buffer is an input buffer owned by a component port. Data spans the whole
// allocation; Filled bytes starting at Offset are consumed on submission.
type Buffer struct {
	Data   []byte
	Filled int
	Offset int
	Flags  BufferFlags

	// Native carries the backend's buffer header.
	Native any
}

// Capacity is the allocation size of the buffer.
func (b *Buffer) Capacity() int {
	return len(b.Data)
}

// Tunnel connects an output port of one component to an input port of another.
type Tunnel struct {
	Source     Component
	SourcePort Port
	Sink       Component
	SinkPort   Port
}

func (t *Tunnel) String() string {
	if t == nil || t.Source == nil || t.Sink == nil {
		return "tunnel(unset)"
	}
	return fmt.Sprintf("%s:%d->%s:%d", t.Source.Role(), t.SourcePort, t.Sink.Role(), t.SinkPort)
}
