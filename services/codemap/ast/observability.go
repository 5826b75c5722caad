// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the shared OTel tracer for extraction operations.
var tracer = otel.Tracer("codebuddy.ast")

// Package-level Prometheus metrics for extraction.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// parseDuration measures per-file extraction time.
	//
	// Labels:
	//   - language: "c"
	//   - status: "success" or "error"
	parseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codemap",
			Subsystem: "ast",
			Name:      "parse_duration_seconds",
			Help:      "Duration of per-file fact extraction in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"language", "status"},
	)

	// parsesTotal counts extraction attempts.
	//
	// Labels:
	//   - language: "c"
	//   - status: "success" or "error"
	parsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codemap",
			Subsystem: "ast",
			Name:      "parses_total",
			Help:      "Total per-file extraction attempts.",
		},
		[]string{"language", "status"},
	)

	// entitiesTotal counts extracted facts by kind.
	//
	// Labels:
	//   - language: "c"
	//   - kind: "function_def", "function_proto", "struct", "typedef", "global", "call"
	entitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codemap",
			Subsystem: "ast",
			Name:      "entities_total",
			Help:      "Total extracted facts by entity kind.",
		},
		[]string{"language", "kind"},
	)
)

// startParseSpan opens the extraction span for one file.
func startParseSpan(ctx context.Context, language, filePath string, contentLen int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ast.Parse",
		trace.WithAttributes(
			attribute.String("language", language),
			attribute.String("file", filePath),
			attribute.Int("content_bytes", contentLen),
		),
	)
}

// setParseSpanResult records extraction outcome attributes on the span.
func setParseSpanResult(span trace.Span, entityCount, errorCount int) {
	span.SetAttributes(
		attribute.Int("entities", entityCount),
		attribute.Int("parse_errors", errorCount),
	)
}

// recordParseMetrics records Prometheus metrics for one extraction.
//
// Inputs:
//   - language: Parser language label.
//   - duration: How long extraction took.
//   - entities: Extracted facts, counted by kind on success.
//   - success: Whether extraction produced a result.
func recordParseMetrics(language string, duration time.Duration, entities []RawEntity, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	parseDuration.WithLabelValues(language, status).Observe(duration.Seconds())
	parsesTotal.WithLabelValues(language, status).Inc()
	for _, e := range entities {
		entitiesTotal.WithLabelValues(language, e.Kind.String()).Inc()
	}
}
