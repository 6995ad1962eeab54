// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import "errors"

var (
	// ErrMissingConfig is returned when an app is created without a config holder.
	ErrMissingConfig = errors.New("config holder is required")

	// ErrUnknownBackend is returned for a backend name with no implementation.
	ErrUnknownBackend = errors.New("unknown pipeline backend")
)
