// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
)

// influxTokenEnv names the env var carrying the InfluxDB API token.
const influxTokenEnv = "CODEBUDDY_INFLUX_TOKEN"

const buildMeasurement = "codemap_build"

// BuildHistorySink records one InfluxDB point per completed build, so
// map growth and build latency can be charted over time.
//
// Thread Safety: safe for concurrent use; the blocking write API
// serializes internally.
type BuildHistorySink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *slog.Logger
}

// NewBuildHistorySink connects to InfluxDB. The API token is read
// from CODEBUDDY_INFLUX_TOKEN; an empty token is allowed for
// unauthenticated local instances.
func NewBuildHistorySink(url, org, bucket string, logger *slog.Logger) (*BuildHistorySink, error) {
	if url == "" || org == "" || bucket == "" {
		return nil, fmt.Errorf("influx url, org, and bucket are all required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(url, os.Getenv(influxTokenEnv))
	return &BuildHistorySink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		logger:   logger,
	}, nil
}

// RecordBuild writes one point for a finished build.
func (s *BuildHistorySink) RecordBuild(ctx context.Context, projectRoot string, stats pipeline.BuildStats) error {
	point := influxdb2.NewPoint(
		buildMeasurement,
		map[string]string{
			"project": projectRoot,
		},
		map[string]interface{}{
			"duration_ms":  stats.DurationMilli,
			"files_walked": stats.FilesWalked,
			"files_parsed": stats.FilesParsed,
			"files_failed": stats.FilesFailed,
			"cache_hits":   stats.CacheHits,
			"symbols":      stats.Symbols,
			"edges":        stats.Edges,
			"diagnostics":  stats.Diagnostics,
		},
		time.Now(),
	)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write build history point: %w", err)
	}
	s.logger.Debug("Build recorded in history",
		slog.String("run_id", stats.RunID),
		slog.Int("symbols", stats.Symbols),
		slog.Int("edges", stats.Edges))
	return nil
}

// Close releases the InfluxDB client.
func (s *BuildHistorySink) Close() {
	s.client.Close()
}
