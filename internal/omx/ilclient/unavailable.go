// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !ilclient || !cgo

// Package ilclient binds the Broadcom IL client helper library found on
// Raspberry Pi firmware images (/opt/vc). Build with -tags ilclient.
package ilclient

import (
	"fmt"

	"github.com/ManuGH/vplay/internal/omx"
	"github.com/rs/zerolog"
)

// Open reports that the binary was built without the ilclient backend.
func Open(_ zerolog.Logger) (omx.Service, error) {
	return nil, fmt.Errorf("ilclient backend not compiled in (build with -tags ilclient): %w", omx.ErrUnavailable)
}
