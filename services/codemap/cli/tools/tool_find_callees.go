// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

// FindCalleesOutput is the structured result of find_callees.
type FindCalleesOutput struct {
	FunctionName string       `json:"function_name"`
	TotalCallees int          `json:"total_callees"`
	Truncated    bool         `json:"truncated,omitempty"`
	Callees      []SymbolInfo `json:"callees"`
}

type findCalleesTool struct {
	projector *views.Projector
}

// NewFindCalleesTool creates the find_callees tool, the downstream
// counterpart of find_callers.
func NewFindCalleesTool(p *views.Projector) Tool {
	return &findCalleesTool{projector: p}
}

func (t *findCalleesTool) Name() string { return "find_callees" }

func (t *findCalleesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: "find_callees",
		Description: "Find all functions a given function CALLS (downstream dependencies). " +
			"Use when asked 'what does X call?' or 'what does X depend on?'. " +
			"NOT for 'who calls X?' - use find_callers for that.",
		Parameters: map[string]ParamDef{
			"function_name": {
				Type:        ParamTypeString,
				Description: "Name of the calling function, e.g. 'main'.",
				Required:    true,
			},
			"limit": {
				Type:        ParamTypeInt,
				Description: "Maximum number of callees to return",
				Default:     defaultLimit,
			},
		},
	}
}

func (t *findCalleesTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	start := time.Now()
	name, err := requireName(params, "function_name")
	if err != nil {
		return failure(start, err)
	}
	limit := limitParam(params)

	_, span := toolsTracer.Start(ctx, "tools.FindCallees")
	defer span.End()
	span.SetAttributes(
		attribute.String("function_name", name),
		attribute.Int("limit", limit),
	)

	callees, err := t.projector.CalleesOf(name)
	if err != nil {
		if errors.Is(err, views.ErrSymbolNotFound) {
			return failure(start, err)
		}
		return nil, err
	}

	output := FindCalleesOutput{
		FunctionName: name,
		TotalCallees: len(callees),
		Callees:      symbolInfos(callees, limit),
	}
	output.Truncated = len(callees) > limit
	span.SetAttributes(attribute.Int("total_callees", output.TotalCallees))

	return &Result{
		Success:    true,
		Output:     output,
		OutputText: formatSymbolList("callees of", name, callees, limit),
		Duration:   time.Since(start),
	}, nil
}
