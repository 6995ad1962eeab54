// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/vplay/internal/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// WriteTextfile writes the default registry in the node_exporter textfile
// format. The file is replaced atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}

// RunTextfileExporter rewrites path every interval until ctx is done, then
// writes a final snapshot. A disabled exporter (empty path) returns at once.
func RunTextfileExporter(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger) error {
	if path == "" {
		return nil
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	logger.Info().
		Str(log.FieldEvent, "metrics.textfile_started").
		Str(log.FieldPath, path).
		Dur("interval", interval).
		Msg("exporting metrics to textfile")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := WriteTextfile(path); err != nil {
				logger.Warn().Err(err).Str(log.FieldEvent, "metrics.textfile_failed").Msg("final metrics export failed")
			}
			return nil
		case <-ticker.C:
			if err := WriteTextfile(path); err != nil {
				logger.Warn().Err(err).Str(log.FieldEvent, "metrics.textfile_failed").Msg("metrics export failed")
			}
		}
	}
}
