// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/LunarLaurus/codebuddy/services/codemap/search"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// FindSymbolOutput is the structured result of find_symbol.
type FindSymbolOutput struct {
	Query   string            `json:"query"`
	Matches []SymbolMatchInfo `json:"matches"`
}

// SymbolMatchInfo is one ranked match.
type SymbolMatchInfo struct {
	Name      string `json:"name"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
	Kind      string `json:"kind"`
	MatchType string `json:"match_type"`
}

type findSymbolTool struct {
	table *symtab.Table
}

// NewFindSymbolTool creates the find_symbol tool, a fuzzy name lookup
// for when the exact spelling of a symbol is unknown.
func NewFindSymbolTool(table *symtab.Table) Tool {
	return &findSymbolTool{table: table}
}

func (t *findSymbolTool) Name() string { return "find_symbol" }

func (t *findSymbolTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: "find_symbol",
		Description: "Look up symbols by approximate name. Ranks exact matches above " +
			"prefix, substring, and close-spelling matches. Use this first when the " +
			"exact symbol name is uncertain, then pass the resolved name to other tools.",
		Parameters: map[string]ParamDef{
			"query": {
				Type:        ParamTypeString,
				Description: "Symbol name or fragment, e.g. 'parse' or 'alloc_buf'.",
				Required:    true,
			},
			"limit": {
				Type:        ParamTypeInt,
				Description: "Maximum number of matches to return",
				Default:     10,
			},
		},
	}
}

func (t *findSymbolTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	start := time.Now()
	query, err := requireName(params, "query")
	if err != nil {
		return failure(start, err)
	}
	limit := 10
	if raw, ok := params["limit"]; ok {
		if n, ok := parseIntParam(raw); ok && n > 0 {
			limit = n
		}
	}

	_, span := toolsTracer.Start(ctx, "tools.FindSymbol")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", query),
		attribute.Int("limit", limit),
	)

	matches := search.Find(t.table, query, limit)
	span.SetAttributes(attribute.Int("matches", len(matches)))

	output := FindSymbolOutput{Query: query, Matches: make([]SymbolMatchInfo, 0, len(matches))}
	for _, m := range matches {
		output.Matches = append(output.Matches, SymbolMatchInfo{
			Name:      m.Symbol.Name,
			File:      m.Symbol.File,
			Line:      m.Symbol.Line,
			Kind:      m.Symbol.Kind.String(),
			MatchType: m.MatchType,
		})
	}

	return &Result{
		Success:    true,
		Output:     output,
		OutputText: formatMatches(query, output.Matches),
		Duration:   time.Since(start),
	}, nil
}

func formatMatches(query string, matches []SymbolMatchInfo) string {
	var sb strings.Builder
	if len(matches) == 0 {
		fmt.Fprintf(&sb, "No symbols matching '%s'.\n", query)
		return sb.String()
	}
	fmt.Fprintf(&sb, "Symbols matching '%s':\n", query)
	for _, m := range matches {
		if m.File != "" {
			fmt.Fprintf(&sb, "  - %s (%s, %s) %s:%d\n", m.Name, m.Kind, m.MatchType, m.File, m.Line)
		} else {
			fmt.Fprintf(&sb, "  - %s (%s, %s)\n", m.Name, m.Kind, m.MatchType)
		}
	}
	return sb.String()
}
