// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
)

var toolsTracer = otel.Tracer("codebuddy.tools")

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// parseStringParam accepts string values; anything else misses.
func parseStringParam(raw any) (string, bool) {
	s, ok := raw.(string)
	return s, ok
}

// parseIntParam accepts the numeric shapes JSON decoding produces.
func parseIntParam(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// requireName extracts and validates a non-blank symbol name param.
func requireName(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	name, ok := parseStringParam(raw)
	if !ok || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return strings.TrimSpace(name), nil
}

// limitParam reads an optional limit, clamped to [1, maxLimit].
func limitParam(params map[string]any) int {
	raw, ok := params["limit"]
	if !ok {
		return defaultLimit
	}
	limit, ok := parseIntParam(raw)
	if !ok {
		return defaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// failure builds a Result for a tool that ran and failed. The error
// is reported inside the Result; the Go error return stays nil so
// callers distinguish dispatch failures from tool failures.
func failure(start time.Time, err error) (*Result, error) {
	return &Result{
		Success:  false,
		Error:    err.Error(),
		Duration: time.Since(start),
	}, nil
}
