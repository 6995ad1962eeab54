// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import "fmt"

// Stage names a step of graph construction or of the playback run.
type Stage string

const (
	StageCreate          Stage = "create"
	StageCreateDecode    Stage = "create_video_decode"
	StageCreateScheduler Stage = "create_video_scheduler"
	StageCreateRender    Stage = "create_video_render"
	StageCreateClock     Stage = "create_clock"
	StageClockConfig     Stage = "clock_config"
	StageClockTunnel     Stage = "clock_tunnel"
	StageClockExecuting  Stage = "clock_executing"
	StageDecodeIdle      Stage = "decode_idle"
	StagePortFormat      Stage = "port_format"
	StageInputBuffers    Stage = "input_buffers"

	StageDecodeExecuting    Stage = "decode_executing"
	StageDecodeTunnel       Stage = "decode_tunnel"
	StageSchedulerExecuting Stage = "scheduler_executing"
	StageRenderTunnel       Stage = "render_tunnel"
	StageRenderExecuting    Stage = "render_executing"
	StageSubmit             Stage = "submit"
)

// StageError reports which step failed. It unwraps to the hardware cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
