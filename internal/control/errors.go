// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package control

import "errors"

var (
	// ErrMissingURI is returned when no control endpoint address is configured.
	ErrMissingURI = errors.New("control uri is required")

	// ErrMissingMailbox is returned when a listener is built without a mailbox.
	ErrMissingMailbox = errors.New("mailbox is required")

	// ErrSingleShot records that a single-shot listener stopped after its first frame.
	ErrSingleShot = errors.New("listener stopped after first frame")
)
