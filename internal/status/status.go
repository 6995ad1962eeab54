// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package status publishes what the player is doing as a small JSON file that
// other processes can poll.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ManuGH/vplay/internal/log"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// State is the session loop position.
type State string

const (
	StateIdle       State = "idle"
	StatePlaying    State = "playing"
	StateTerminated State = "terminated"
)

// Snapshot is the published document.
type Snapshot struct {
	State     State     `json:"state"`
	File      string    `json:"file,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reporter receives every session loop transition.
type Reporter interface {
	Report(Snapshot)
}

type nopReporter struct{}

func (nopReporter) Report(Snapshot) {}

// Nop discards snapshots.
func Nop() Reporter { return nopReporter{} }

// Switch forwards snapshots to a replaceable reporter.
type Switch struct {
	mu     sync.Mutex
	target Reporter
	last   *Snapshot
}

// NewSwitch starts forwarding to r; nil means Nop.
func NewSwitch(r Reporter) *Switch {
	if r == nil {
		r = Nop()
	}
	return &Switch{target: r}
}

// Report forwards s and remembers it.
func (w *Switch) Report(s Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = &s
	w.target.Report(s)
}

// Replace forwards future snapshots to r and republishes the latest one
// there, so a new target starts out current.
func (w *Switch) Replace(r Reporter) {
	if r == nil {
		r = Nop()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.target = r
	if w.last != nil {
		s := *w.last
		s.UpdatedAt = time.Time{}
		r.Report(s)
	}
}

// File writes snapshots atomically to a path.
type File struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewFile returns a file reporter, or Nop when path is empty.
func NewFile(path string, logger zerolog.Logger) Reporter {
	if path == "" {
		return Nop()
	}
	return &File{
		path:   path,
		logger: log.WithComponent(logger, "status"),
		now:    time.Now,
	}
}

// Report writes s. Failures are logged; playback never depends on the file.
func (f *File) Report(s Snapshot) {
	if err := f.Write(s); err != nil {
		f.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "status.write_failed").
			Str(log.FieldPath, f.path).
			Msg("could not publish status")
	}
}

// Write replaces the status file with s.
func (f *File) Write(s Snapshot) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = f.now().UTC()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	pending, err := renameio.NewPendingFile(f.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending status file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// Read loads a status file.
func Read(path string) (Snapshot, error) {
	var s Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode status %s: %w", path, err)
	}
	return s, nil
}
