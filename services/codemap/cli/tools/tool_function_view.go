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

	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

type functionViewTool struct {
	projector *views.Projector
}

// NewFunctionViewTool creates the function_view tool.
//
// Description:
//
//	Returns the full projection for one function: identity, location,
//	definition state, and its complete caller and callee name lists.
//	The richest single-symbol answer; prefer it when the question
//	spans both directions.
func NewFunctionViewTool(p *views.Projector) Tool {
	return &functionViewTool{projector: p}
}

func (t *functionViewTool) Name() string { return "function_view" }

func (t *functionViewTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: "function_view",
		Description: "Get the complete view of one function: where it is defined, " +
			"whether the definition was found, and its full caller and callee lists. " +
			"Use for 'tell me about X' or questions needing both directions at once.",
		Parameters: map[string]ParamDef{
			"function_name": {
				Type:        ParamTypeString,
				Description: "Function name or symbol id.",
				Required:    true,
			},
		},
	}
}

func (t *functionViewTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	start := time.Now()
	name, err := requireName(params, "function_name")
	if err != nil {
		return failure(start, err)
	}

	_, span := toolsTracer.Start(ctx, "tools.FunctionView")
	defer span.End()
	span.SetAttributes(attribute.String("function_name", name))

	view, err := t.projector.FunctionView(name)
	if err != nil {
		if errors.Is(err, views.ErrSymbolNotFound) {
			return failure(start, err)
		}
		return nil, err
	}

	return &Result{
		Success:    true,
		Output:     view,
		OutputText: formatFunctionView(view),
		Duration:   time.Since(start),
	}, nil
}

func formatFunctionView(v views.FunctionView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", v.Name)
	switch {
	case v.External:
		sb.WriteString("  external (no definition in this project)\n")
	case v.HasDefinition:
		fmt.Fprintf(&sb, "  defined at %s:%d\n", v.File, v.Line)
	default:
		fmt.Fprintf(&sb, "  prototype only, declared at %s:%d\n", v.File, v.Line)
	}
	if v.Ambiguous {
		sb.WriteString("  ambiguous: multiple definitions exist; first occurrence shown\n")
	}
	if len(v.Callers) > 0 {
		fmt.Fprintf(&sb, "  called by (%d): %s\n", len(v.Callers), strings.Join(v.Callers, ", "))
	} else {
		sb.WriteString("  called by: nothing (entry point or dead code)\n")
	}
	if len(v.Callees) > 0 {
		fmt.Fprintf(&sb, "  calls (%d): %s\n", len(v.Callees), strings.Join(v.Callees, ", "))
	} else {
		sb.WriteString("  calls: nothing (leaf function)\n")
	}
	return sb.String()
}
