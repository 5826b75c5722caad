// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// llmTracer is the shared OTel tracer for model calls.
var llmTracer = otel.Tracer("codebuddy.llm")

// Package-level Prometheus metrics for outbound model calls.
var (
	// callsTotal counts calls by model and outcome. Outcome "rejected"
	// means the send guard refused the prompt before any network I/O.
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codemap",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Outbound LLM calls by model and outcome.",
		},
		[]string{"model", "outcome"},
	)

	// callDuration measures round-trip latency of successful and
	// failed calls.
	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codemap",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call round-trip latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 120},
		},
		[]string{"model"},
	)

	// completionBytes measures completion sizes.
	completionBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codemap",
			Subsystem: "llm",
			Name:      "completion_bytes",
			Help:      "Completion sizes in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"model"},
	)
)

// recordCall records one call attempt. Rejected calls carry no
// duration because no network round trip happened.
func recordCall(model, outcome string, duration time.Duration, outBytes int) {
	callsTotal.WithLabelValues(model, outcome).Inc()
	if outcome == "rejected" {
		return
	}
	callDuration.WithLabelValues(model).Observe(duration.Seconds())
	if outcome == "ok" {
		completionBytes.WithLabelValues(model).Observe(float64(outBytes))
	}
}
