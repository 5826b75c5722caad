// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools provides typed query tools over a finished code map:
// find_callers, find_callees, function_view, and find_symbol. Tools
// carry JSON-schema style definitions so they can be offered to an
// LLM for function calling, and every tool returns both structured
// output and a human-readable text rendering.
package tools

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ParamType is the JSON Schema type of a tool parameter.
type ParamType string

const (
	ParamTypeString ParamType = "string"
	ParamTypeInt    ParamType = "integer"
	ParamTypeBool   ParamType = "boolean"
)

// ParamDef defines one tool parameter.
type ParamDef struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// ToolDefinition describes a tool to callers and to LLM providers.
type ToolDefinition struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  map[string]ParamDef `json:"parameters,omitempty"`
}

// Result is the outcome of one tool execution.
//
// Output carries the typed result for JSON consumers; OutputText is
// the same information rendered for a terminal or an LLM transcript.
type Result struct {
	Success    bool          `json:"success"`
	Output     any           `json:"output,omitempty"`
	OutputText string        `json:"output_text,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Tool is a single typed query over the current build.
//
// Thread Safety: implementations are read-only over a frozen build
// and safe for concurrent use.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Registry holds the available tools by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry over the given tools. Duplicate
// names are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		name := t.Name()
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		r.tools[name] = t
	}
	return r, nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns all tool definitions sorted by name.
func (r *Registry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool. An unknown name is an error; a tool
// that ran but failed returns Success=false inside the Result.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (*Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return t.Execute(ctx, params)
}
