// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package views provides read-only projections over a frozen symbol
// table and call graph: callers-of, callees-of, and the per-function
// view consumed by output formatting, the HTTP service, and LLM
// summarization.
//
// Projections never mutate the table or graph, and the two directions
// always agree: for every edge (a, b), b appears in the callees of a
// and a appears in the callers of b, and no other pairs appear.
package views

import (
	"errors"
	"fmt"
	"sort"

	"github.com/LunarLaurus/codebuddy/services/codemap/callgraph"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// ErrSymbolNotFound is returned when a name or id resolves to nothing.
var ErrSymbolNotFound = errors.New("symbol not found")

// FunctionView is the per-function projection: the symbol's identity
// plus its callers and callees as deterministically sorted unique
// names.
type FunctionView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	File          string   `json:"file,omitempty"`
	Line          int      `json:"line,omitempty"`
	HasDefinition bool     `json:"has_definition"`
	Ambiguous     bool     `json:"ambiguous,omitempty"`
	External      bool     `json:"external,omitempty"`
	Callers       []string `json:"callers"`
	Callees       []string `json:"callees"`
}

// Projector answers read-only queries over one build's table and graph.
//
// Thread Safety: safe for concurrent use once the table and graph are
// frozen; the projector holds no mutable state of its own.
type Projector struct {
	table *symtab.Table
	graph *callgraph.Graph
}

// NewProjector creates a projector over a table/graph pair.
func NewProjector(table *symtab.Table, graph *callgraph.Graph) *Projector {
	return &Projector{table: table, graph: graph}
}

// Resolve finds a symbol by name or by id, name first.
func (p *Projector) Resolve(nameOrID string) (*symtab.Symbol, error) {
	if s, ok := p.table.Lookup(nameOrID); ok {
		return s, nil
	}
	if s, ok := p.table.ByID(nameOrID); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, nameOrID)
}

// CalleesOf returns the symbols called by the named function, sorted
// by name.
func (p *Projector) CalleesOf(nameOrID string) ([]*symtab.Symbol, error) {
	sym, err := p.Resolve(nameOrID)
	if err != nil {
		return nil, err
	}
	return p.symbolsForIDs(p.graph.CalleeIDs(sym.ID)), nil
}

// CallersOf returns the symbols that call the named function, sorted
// by name.
func (p *Projector) CallersOf(nameOrID string) ([]*symtab.Symbol, error) {
	sym, err := p.Resolve(nameOrID)
	if err != nil {
		return nil, err
	}
	return p.symbolsForIDs(p.graph.CallerIDs(sym.ID)), nil
}

// FunctionView builds the per-function projection for a name or id.
//
// Outputs:
//   - FunctionView: Identity plus sorted unique caller and callee
//     names. Callers and Callees are empty slices, never nil, so the
//     JSON rendering is always an array.
//   - error: ErrSymbolNotFound when nothing matches.
func (p *Projector) FunctionView(nameOrID string) (FunctionView, error) {
	sym, err := p.Resolve(nameOrID)
	if err != nil {
		return FunctionView{}, err
	}
	return FunctionView{
		ID:            sym.ID,
		Name:          sym.Name,
		File:          sym.File,
		Line:          sym.Line,
		HasDefinition: sym.HasDefinition,
		Ambiguous:     sym.Ambiguous,
		External:      sym.IsExternal(),
		Callers:       p.namesForIDs(p.graph.CallerIDs(sym.ID)),
		Callees:       p.namesForIDs(p.graph.CalleeIDs(sym.ID)),
	}, nil
}

// AllFunctionViews returns the view of every function and external
// placeholder in the table, sorted by name. Used by exporters and the
// overview report.
func (p *Projector) AllFunctionViews() []FunctionView {
	var out []FunctionView
	for _, sym := range p.table.Symbols() {
		if sym.Kind != symtab.KindFunction && sym.Kind != symtab.KindExternal {
			continue
		}
		view, err := p.FunctionView(sym.ID)
		if err != nil {
			continue
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Table returns the underlying symbol table.
func (p *Projector) Table() *symtab.Table {
	return p.table
}

// Graph returns the underlying call graph.
func (p *Projector) Graph() *callgraph.Graph {
	return p.graph
}

func (p *Projector) symbolsForIDs(ids []string) []*symtab.Symbol {
	out := make([]*symtab.Symbol, 0, len(ids))
	for _, id := range ids {
		if s, ok := p.table.ByID(id); ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (p *Projector) namesForIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := p.table.ByID(id); ok {
			out = append(out, s.Name)
		}
	}
	sort.Strings(out)
	return out
}
