// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package omx

import "errors"

var (
	// ErrTimeout is returned when a bounded wait elapsed without the event.
	ErrTimeout = errors.New("omx: timed out")

	// ErrRefused is returned when the hardware rejected a request.
	ErrRefused = errors.New("omx: request refused")

	// ErrEventError is returned when a component reported an error event while waiting.
	ErrEventError = errors.New("omx: component reported error event")

	// ErrUnavailable is returned when the backend is not compiled in or cannot initialise.
	ErrUnavailable = errors.New("omx: backend unavailable")
)
