// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the shared OTel tracer for build operations.
var tracer = otel.Tracer("codebuddy.pipeline")

// Package-level Prometheus metrics for builds.
var (
	// buildDuration measures full build time, walk through freeze.
	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codemap",
			Subsystem: "pipeline",
			Name:      "build_duration_seconds",
			Help:      "Duration of full code map builds in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"status"},
	)

	// buildsTotal counts build attempts.
	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codemap",
			Subsystem: "pipeline",
			Name:      "builds_total",
			Help:      "Total code map build attempts.",
		},
		[]string{"status"},
	)

	// buildSymbols records the symbol count of the latest build.
	buildSymbols = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codemap",
			Subsystem: "pipeline",
			Name:      "symbols",
			Help:      "Symbols in the most recent build, placeholders included.",
		},
	)

	// buildEdges records the edge count of the latest build.
	buildEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codemap",
			Subsystem: "pipeline",
			Name:      "call_edges",
			Help:      "Distinct call edges in the most recent build.",
		},
	)

	// rebuildsTotal counts watch-mode rebuild triggers.
	rebuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codemap",
			Subsystem: "pipeline",
			Name:      "watch_rebuilds_total",
			Help:      "Rebuilds triggered by filesystem events in watch mode.",
		},
	)
)

// startBuildSpan opens the span covering one full build.
func startBuildSpan(ctx context.Context, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline.Build",
		trace.WithAttributes(attribute.String("project_root", root)),
	)
}

// setBuildSpanResult records build outcome attributes on the span.
func setBuildSpanResult(span trace.Span, stats BuildStats) {
	span.SetAttributes(
		attribute.String("run_id", stats.RunID),
		attribute.Int("files", stats.FilesWalked),
		attribute.Int("files_failed", stats.FilesFailed),
		attribute.Int("symbols", stats.Symbols),
		attribute.Int("edges", stats.Edges),
		attribute.Int("diagnostics", stats.Diagnostics),
		attribute.Int("cache_hits", stats.CacheHits),
	)
}

// recordBuildMetrics records Prometheus metrics for one build attempt.
func recordBuildMetrics(duration time.Duration, symbols, edges int, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	buildDuration.WithLabelValues(status).Observe(duration.Seconds())
	buildsTotal.WithLabelValues(status).Inc()
	if success {
		buildSymbols.Set(float64(symbols))
		buildEdges.Set(float64(edges))
	}
}
