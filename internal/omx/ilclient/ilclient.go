// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build ilclient && cgo

// Package ilclient binds the Broadcom IL client helper library found on
// Raspberry Pi firmware images (/opt/vc). Build with -tags ilclient.
package ilclient

/*
#cgo CFLAGS: -DSTANDALONE -D__STDC_CONSTANT_MACROS -D__STDC_LIMIT_MACROS -DTARGET_POSIX -D_LINUX -DPIC -D_REENTRANT -D_LARGEFILE64_SOURCE -D_FILE_OFFSET_BITS=64 -DHAVE_LIBOPENMAX=2 -DOMX -DOMX_SKIP64BIT -DUSE_EXTERNAL_OMX -DHAVE_LIBBCM_HOST -DUSE_EXTERNAL_LIBBCM_HOST -DUSE_VCHIQ_ARM
#cgo CFLAGS: -I/opt/vc/include -I/opt/vc/include/interface/vcos/pthreads -I/opt/vc/include/interface/vmcs_host/linux -I/opt/vc/src/hello_pi/libs/ilclient
#cgo LDFLAGS: -L/opt/vc/lib -L/opt/vc/src/hello_pi/libs/ilclient -lilclient -lopenmaxil -lbcm_host -lvcos -lvchiq_arm -lpthread

#include <stdlib.h>
#include <string.h>
#include "bcm_host.h"
#include "ilclient.h"

static int vp_create(ILCLIENT_T *client, COMPONENT_T **comp, char *name, int flags) {
	return ilclient_create_component(client, comp, name, (ILCLIENT_CREATE_FLAGS_T)flags);
}

static int vp_set_clock_waiting(COMPONENT_T *comp, OMX_U32 mask) {
	OMX_TIME_CONFIG_CLOCKSTATETYPE cstate;
	memset(&cstate, 0, sizeof(cstate));
	cstate.nSize = sizeof(cstate);
	cstate.nVersion.nVersion = OMX_VERSION;
	cstate.eState = OMX_TIME_ClockStateWaitingForStartTime;
	cstate.nWaitMask = mask;
	return OMX_SetParameter(ILC_GET_HANDLE(comp), OMX_IndexConfigTimeClockState, &cstate) == OMX_ErrorNone ? 0 : -1;
}

static int vp_set_port_format(COMPONENT_T *comp, OMX_U32 port, int coding) {
	OMX_VIDEO_PARAM_PORTFORMATTYPE format;
	memset(&format, 0, sizeof(format));
	format.nSize = sizeof(format);
	format.nVersion.nVersion = OMX_VERSION;
	format.nPortIndex = port;
	format.eCompressionFormat = (OMX_VIDEO_CODINGTYPE)coding;
	return OMX_SetParameter(ILC_GET_HANDLE(comp), OMX_IndexParamVideoPortFormat, &format) == OMX_ErrorNone ? 0 : -1;
}

static int vp_empty(COMPONENT_T *comp, OMX_BUFFERHEADERTYPE *buf) {
	return OMX_EmptyThisBuffer(ILC_GET_HANDLE(comp), buf) == OMX_ErrorNone ? 0 : -1;
}

static void vp_set_tunnel(TUNNEL_T *t, COMPONENT_T *src, int srcPort, COMPONENT_T *sink, int sinkPort) {
	set_tunnel(t, src, srcPort, sink, sinkPort);
}

static int vp_remove_settings(COMPONENT_T *comp, OMX_U32 port) {
	return ilclient_remove_event(comp, OMX_EventPortSettingsChanged, port, 0, 0, 1);
}

static int vp_remove_eos(COMPONENT_T *comp, OMX_U32 port) {
	return ilclient_remove_event(comp, OMX_EventBufferFlag, port, 0, OMX_BUFFERFLAG_EOS, 0);
}

static int vp_wait_settings(COMPONENT_T *comp, OMX_U32 port, int ms) {
	return ilclient_wait_for_event(comp, OMX_EventPortSettingsChanged, port, 0, 0, 1,
		ILCLIENT_EVENT_ERROR | ILCLIENT_PARAMETER_CHANGED, ms);
}

static int vp_wait_eos(COMPONENT_T *comp, OMX_U32 port, int ms) {
	return ilclient_wait_for_event(comp, OMX_EventBufferFlag, port, 0, OMX_BUFFERFLAG_EOS, 0,
		ILCLIENT_BUFFER_FLAG_EOS, ms);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/ManuGH/vplay/internal/omx"
	"github.com/rs/zerolog"
)

// Service implements omx.Service on top of ilclient.
type Service struct {
	client *C.ILCLIENT_T
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

var _ omx.Service = (*Service)(nil)

// Open initialises the video core, OpenMAX and an ilclient instance.
func Open(logger zerolog.Logger) (omx.Service, error) {
	C.bcm_host_init()
	if C.OMX_Init() != C.OMX_ErrorNone {
		return nil, fmt.Errorf("OMX_Init: %w", omx.ErrUnavailable)
	}
	client := C.ilclient_init()
	if client == nil {
		C.OMX_Deinit()
		return nil, fmt.Errorf("ilclient_init: %w", omx.ErrUnavailable)
	}
	return &Service{
		client: client,
		logger: logger.With().Str("component", "omx.ilclient").Logger(),
	}, nil
}

func (s *Service) CreateComponent(role omx.Role, flags omx.CreateFlags) (omx.Component, error) {
	name := C.CString(string(role))
	defer C.free(unsafe.Pointer(name))

	var native C.int
	if flags&omx.FlagDisableAllPorts != 0 {
		native |= C.ILCLIENT_DISABLE_ALL_PORTS
	}
	if flags&omx.FlagEnableInputBuffers != 0 {
		native |= C.ILCLIENT_ENABLE_INPUT_BUFFERS
	}

	var comp *C.COMPONENT_T
	if C.vp_create(s.client, &comp, name, native) != 0 || comp == nil {
		return nil, fmt.Errorf("create %s: %w", role, omx.ErrRefused)
	}
	return &component{comp: comp, role: role, state: omx.StateLoaded}, nil
}

func nativeOf(c omx.Component) *C.COMPONENT_T {
	if ic, ok := c.(*component); ok && ic != nil {
		return ic.comp
	}
	return nil
}

// tunnels builds a NULL-terminated TUNNEL_T array in C memory. The caller frees it.
func tunnels(ts []*omx.Tunnel) *C.TUNNEL_T {
	size := C.size_t(unsafe.Sizeof(C.TUNNEL_T{}))
	arr := (*C.TUNNEL_T)(C.calloc(C.size_t(len(ts)+1), size))
	list := unsafe.Slice(arr, len(ts)+1)
	for i, t := range ts {
		C.vp_set_tunnel(&list[i], nativeOf(t.Source), C.int(t.SourcePort), nativeOf(t.Sink), C.int(t.SinkPort))
	}
	return arr
}

func (s *Service) SetupTunnel(t *omx.Tunnel, timeout time.Duration) error {
	arr := tunnels([]*omx.Tunnel{t})
	defer C.free(unsafe.Pointer(arr))

	if rc := C.ilclient_setup_tunnel(arr, 0, C.int(timeout.Milliseconds())); rc != 0 {
		return fmt.Errorf("setup tunnel %s (rc=%d): %w", t, int(rc), omx.ErrRefused)
	}
	for _, c := range []omx.Component{t.Source, t.Sink} {
		if ic, ok := c.(*component); ok && ic.state == omx.StateLoaded {
			ic.state = omx.StateIdle
		}
	}
	return nil
}

func (s *Service) FlushTunnels(ts []*omx.Tunnel) {
	arr := tunnels(ts)
	defer C.free(unsafe.Pointer(arr))
	C.ilclient_flush_tunnels(arr, 0)
}

func (s *Service) DisableTunnel(t *omx.Tunnel) {
	arr := tunnels([]*omx.Tunnel{t})
	defer C.free(unsafe.Pointer(arr))
	C.ilclient_disable_tunnel(arr)
}

func (s *Service) TeardownTunnels(ts []*omx.Tunnel) {
	arr := tunnels(ts)
	defer C.free(unsafe.Pointer(arr))
	C.ilclient_teardown_tunnels(arr)
}

// components builds a NULL-terminated COMPONENT_T* array in C memory.
func components(cs []omx.Component) **C.COMPONENT_T {
	ptrSize := C.size_t(unsafe.Sizeof(uintptr(0)))
	arr := (**C.COMPONENT_T)(C.calloc(C.size_t(len(cs)+1), ptrSize))
	list := unsafe.Slice(arr, len(cs)+1)
	n := 0
	for _, c := range cs {
		if native := nativeOf(c); native != nil {
			list[n] = native
			n++
		}
	}
	return arr
}

func (s *Service) StateTransition(cs []omx.Component, target omx.State) {
	arr := components(cs)
	defer C.free(unsafe.Pointer(arr))
	C.ilclient_state_transition(arr, nativeState(target))
	for _, c := range cs {
		if ic, ok := c.(*component); ok {
			ic.state = target
		}
	}
}

func (s *Service) CleanupComponents(cs []omx.Component) {
	arr := components(cs)
	defer C.free(unsafe.Pointer(arr))
	C.ilclient_cleanup_components(arr)
	for _, c := range cs {
		if ic, ok := c.(*component); ok {
			ic.comp = nil
		}
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	C.ilclient_destroy(s.client)
	C.OMX_Deinit()
	return nil
}

func nativeState(st omx.State) C.OMX_STATETYPE {
	switch st {
	case omx.StateIdle:
		return C.OMX_StateIdle
	case omx.StateExecuting:
		return C.OMX_StateExecuting
	default:
		return C.OMX_StateLoaded
	}
}

type component struct {
	comp  *C.COMPONENT_T
	role  omx.Role
	state omx.State
}

func (c *component) Role() omx.Role   { return c.role }
func (c *component) State() omx.State { return c.state }

func (c *component) ChangeState(target omx.State) error {
	if c.comp == nil {
		return fmt.Errorf("state %s: released: %w", c.role, omx.ErrRefused)
	}
	if rc := C.ilclient_change_component_state(c.comp, nativeState(target)); rc != 0 {
		return fmt.Errorf("state %s %s->%s (rc=%d): %w", c.role, c.state, target, int(rc), omx.ErrRefused)
	}
	c.state = target
	return nil
}

func (c *component) SetClockWaiting(waitMask uint32) error {
	if C.vp_set_clock_waiting(c.comp, C.OMX_U32(waitMask)) != 0 {
		return fmt.Errorf("clock state on %s: %w", c.role, omx.ErrRefused)
	}
	return nil
}

func (c *component) SetPortFormat(port omx.Port, coding omx.Coding) error {
	var native C.int
	switch coding {
	case omx.CodingAVC:
		native = C.OMX_VIDEO_CodingAVC
	default:
		return fmt.Errorf("format %s: unsupported coding %s: %w", c.role, coding, omx.ErrRefused)
	}
	if C.vp_set_port_format(c.comp, C.OMX_U32(port), native) != 0 {
		return fmt.Errorf("format %s:%d %s: %w", c.role, port, coding, omx.ErrRefused)
	}
	return nil
}

func (c *component) EnablePortBuffers(port omx.Port) error {
	if C.ilclient_enable_port_buffers(c.comp, C.int(port), nil, nil, nil) != 0 {
		return fmt.Errorf("buffers %s:%d: %w", c.role, port, omx.ErrRefused)
	}
	return nil
}

func (c *component) DisablePortBuffers(port omx.Port) {
	C.ilclient_disable_port_buffers(c.comp, C.int(port), nil, nil, nil)
}

// InputBuffer polls without blocking since ilclient's blocking acquire has no timeout.
func (c *component) InputBuffer(port omx.Port, wait time.Duration) *omx.Buffer {
	deadline := time.Now().Add(wait)
	for {
		hdr := C.ilclient_get_input_buffer(c.comp, C.int(port), 0)
		if hdr != nil {
			return &omx.Buffer{
				Data:   unsafe.Slice((*byte)(unsafe.Pointer(hdr.pBuffer)), int(hdr.nAllocLen)),
				Native: hdr,
			}
		}
		if !time.Now().Before(deadline) {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *component) EmptyBuffer(b *omx.Buffer) error {
	hdr, ok := b.Native.(*C.OMX_BUFFERHEADERTYPE)
	if !ok || hdr == nil {
		return fmt.Errorf("submit %s: foreign buffer: %w", c.role, omx.ErrRefused)
	}
	hdr.nFilledLen = C.OMX_U32(b.Filled)
	hdr.nOffset = C.OMX_U32(b.Offset)
	hdr.nFlags = C.OMX_U32(nativeFlags(b.Flags))
	if C.vp_empty(c.comp, hdr) != 0 {
		return fmt.Errorf("submit %s: %w", c.role, omx.ErrRefused)
	}
	return nil
}

func nativeFlags(f omx.BufferFlags) uint32 {
	var out uint32
	if f.Has(omx.BufferStartTime) {
		out |= C.OMX_BUFFERFLAG_STARTTIME
	}
	if f.Has(omx.BufferTimeUnknown) {
		out |= C.OMX_BUFFERFLAG_TIME_UNKNOWN
	}
	if f.Has(omx.BufferEOS) {
		out |= C.OMX_BUFFERFLAG_EOS
	}
	return out
}

func (c *component) RemoveEvent(ev omx.Event, port omx.Port) bool {
	switch ev {
	case omx.EventPortSettingsChanged:
		return C.vp_remove_settings(c.comp, C.OMX_U32(port)) == 0
	case omx.EventBufferFlagEOS:
		return C.vp_remove_eos(c.comp, C.OMX_U32(port)) == 0
	default:
		return false
	}
}

func (c *component) WaitForEvent(ev omx.Event, port omx.Port, timeout time.Duration) error {
	ms := C.int(timeout.Milliseconds())
	var rc C.int
	switch ev {
	case omx.EventPortSettingsChanged:
		rc = C.vp_wait_settings(c.comp, C.OMX_U32(port), ms)
	case omx.EventBufferFlagEOS:
		rc = C.vp_wait_eos(c.comp, C.OMX_U32(port), ms)
	default:
		return fmt.Errorf("wait %s: unsupported event: %w", ev, omx.ErrRefused)
	}
	switch {
	case rc == 0:
		return nil
	case rc == -1:
		return fmt.Errorf("wait %s on %s:%d: %w", ev, c.role, port, omx.ErrTimeout)
	default:
		return fmt.Errorf("wait %s on %s:%d (rc=%d): %w", ev, c.role, port, int(rc), omx.ErrEventError)
	}
}
