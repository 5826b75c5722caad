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
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

// FindCallersOutput is the structured result of find_callers.
type FindCallersOutput struct {
	FunctionName string       `json:"function_name"`
	TotalCallers int          `json:"total_callers"`
	Truncated    bool         `json:"truncated,omitempty"`
	Callers      []SymbolInfo `json:"callers"`
}

// SymbolInfo is the shared per-symbol shape in tool outputs.
type SymbolInfo struct {
	Name     string `json:"name"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	External bool   `json:"external,omitempty"`
}

type findCallersTool struct {
	projector *views.Projector
}

// NewFindCallersTool creates the find_callers tool.
//
// Description:
//
//	Answers "who calls X?" from the frozen call graph. Names resolve
//	case-sensitively by symbol name first, then by symbol id.
//
// Inputs:
//   - p: The projection layer over the current build. Must not be nil.
//
// Outputs:
//   - Tool: The find_callers implementation.
func NewFindCallersTool(p *views.Projector) Tool {
	return &findCallersTool{projector: p}
}

func (t *findCallersTool) Name() string { return "find_callers" }

func (t *findCallersTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: "find_callers",
		Description: "Find all functions that CALL a given function (upstream dependencies). " +
			"Use when asked 'who calls X?' or 'where is X used?'. " +
			"NOT for 'what does X call?' - use find_callees for that.",
		Parameters: map[string]ParamDef{
			"function_name": {
				Type:        ParamTypeString,
				Description: "Name of the function to find callers for, e.g. 'parse_header'.",
				Required:    true,
			},
			"limit": {
				Type:        ParamTypeInt,
				Description: "Maximum number of callers to return",
				Default:     defaultLimit,
			},
		},
	}
}

func (t *findCallersTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	start := time.Now()
	name, err := requireName(params, "function_name")
	if err != nil {
		return failure(start, err)
	}
	limit := limitParam(params)

	_, span := toolsTracer.Start(ctx, "tools.FindCallers")
	defer span.End()
	span.SetAttributes(
		attribute.String("function_name", name),
		attribute.Int("limit", limit),
	)

	callers, err := t.projector.CallersOf(name)
	if err != nil {
		if errors.Is(err, views.ErrSymbolNotFound) {
			return failure(start, err)
		}
		return nil, err
	}

	output := FindCallersOutput{
		FunctionName: name,
		TotalCallers: len(callers),
		Callers:      symbolInfos(callers, limit),
	}
	output.Truncated = len(callers) > limit
	span.SetAttributes(attribute.Int("total_callers", output.TotalCallers))

	return &Result{
		Success:    true,
		Output:     output,
		OutputText: formatSymbolList("callers of", name, callers, limit),
		Duration:   time.Since(start),
	}, nil
}

// symbolInfos converts symbols into the shared output shape, capped
// at limit.
func symbolInfos(symbols []*symtab.Symbol, limit int) []SymbolInfo {
	n := len(symbols)
	if n > limit {
		n = limit
	}
	out := make([]SymbolInfo, 0, n)
	for _, s := range symbols[:n] {
		out = append(out, SymbolInfo{
			Name:     s.Name,
			File:     s.File,
			Line:     s.Line,
			External: s.IsExternal(),
		})
	}
	return out
}

// formatSymbolList renders a caller or callee list for humans. The
// map is complete, so an empty list is a definitive answer, not a
// hint to search elsewhere.
func formatSymbolList(relation, name string, symbols []*symtab.Symbol, limit int) string {
	var sb strings.Builder
	if len(symbols) == 0 {
		fmt.Fprintf(&sb, "No %s '%s'. The map covers every parsed file; this is definitive.\n", relation, name)
		return sb.String()
	}
	fmt.Fprintf(&sb, "Found %d %s '%s':\n", len(symbols), relation, name)
	shown := symbols
	if len(shown) > limit {
		shown = shown[:limit]
	}
	for _, s := range shown {
		if s.IsExternal() {
			fmt.Fprintf(&sb, "  - %s (external)\n", s.Name)
			continue
		}
		fmt.Fprintf(&sb, "  - %s in %s:%d\n", s.Name, s.File, s.Line)
	}
	if len(symbols) > limit {
		fmt.Fprintf(&sb, "  ... %d more (raise limit to see all)\n", len(symbols)-limit)
	}
	return sb.String()
}
