// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import "errors"

var (
	// ErrOpenInput is returned when the elementary stream cannot be opened.
	ErrOpenInput = errors.New("open input")

	// ErrNoService is returned when a driver is built without a pipeline service.
	ErrNoService = errors.New("pipeline service is required")
)
