// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

var inprocSeq atomic.Int64

// InprocURI returns a control endpoint unique within the test binary.
func InprocURI(scope string) string {
	return fmt.Sprintf("inproc://vplay-%s-%d", scope, inprocSeq.Add(1))
}

// WriteStream writes size bytes of placeholder elementary stream data into a
// temp dir and returns the file path.
func WriteStream(t testing.TB, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o600); err != nil {
		t.Fatalf("write stream %s: %v", name, err)
	}
	return path
}
