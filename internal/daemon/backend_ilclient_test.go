// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !ilclient || !cgo

package daemon

import (
	"testing"

	"github.com/ManuGH/vplay/internal/config"
	"github.com/ManuGH/vplay/internal/log"
	"github.com/ManuGH/vplay/internal/omx"
	"github.com/stretchr/testify/assert"
)

func TestOpenBackend_ILClientUnavailable(t *testing.T) {
	cfg := config.Defaults()
	_, err := OpenBackend(cfg, log.Nop())
	assert.ErrorIs(t, err, omx.ErrUnavailable)
}
