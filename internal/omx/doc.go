// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package omx defines the contract of the hardware pipeline service: component
// creation by role, synchronous state changes, port buffer pools, tunnels and
// bounded event waits. Backends live in subpackages: ilclient binds the
// Broadcom IL client library through cgo, sim is an in-memory model used by
// tests and by hosts without the video core.
package omx
