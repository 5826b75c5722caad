// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"errors"
	"fmt"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// ErrNotCall is returned when a declaration fact is fed to the call
// graph builder.
var ErrNotCall = errors.New("entity is not a call fact")

// Builder resolves call facts into graph edges.
//
// The builder holds the symbol table while it is still in building
// state: unresolved callees add external placeholders to it. Call
// facts must arrive in the same deterministic order as declaration
// facts so the diagnostics list is reproducible.
//
// Thread Safety: a Builder belongs to a single goroutine.
type Builder struct {
	table *symtab.Table
	graph *Graph
	diags *diag.List

	// unresolved callee names already diagnosed. One diagnostic per
	// name keeps a thousand printf call sites from drowning the list.
	unresolved map[string]struct{}
}

// NewBuilder creates a builder over a table still in building state.
func NewBuilder(table *symtab.Table, diags *diag.List) *Builder {
	return &Builder{
		table:      table,
		graph:      NewGraph(),
		diags:      diags,
		unresolved: make(map[string]struct{}),
	}
}

// AddCall resolves one call fact and inserts its edge.
//
// Description:
//
//	Caller and callee names are looked up exactly. A caller missing
//	from the table drops the fact with an UnattributedCall diagnostic:
//	a call cannot be attributed without a known enclosing function. A
//	missing callee creates (or reuses) an external placeholder, so
//	callee resolution always succeeds. Repeated pairs and self-loops
//	are handled by the graph: the pair is stored once.
//
// Inputs:
//   - e: One call fact. Kind must be EntityCall.
//
// Outputs:
//   - error: ErrNotCall for non-call facts, ErrGraphFrozen after the
//     graph is frozen. Nil for every resolution outcome.
func (b *Builder) AddCall(e ast.RawEntity) error {
	if e.Kind != ast.EntityCall {
		return ErrNotCall
	}
	if b.graph.frozen {
		return ErrGraphFrozen
	}

	if e.Caller == "" || e.Name == "" {
		b.diags.Append(diag.MalformedEntity(e.FilePath, e.StartLine,
			"call fact missing caller or callee name"))
		return nil
	}

	caller, ok := b.table.Lookup(e.Caller)
	if !ok {
		b.diags.Append(diag.UnattributedCall(e.Caller, e.Name, e.FilePath, e.StartLine))
		return nil
	}

	callee, ok := b.table.Lookup(e.Name)
	if !ok {
		placeholder, err := b.table.AddPlaceholder(e.Name)
		if err != nil {
			return fmt.Errorf("add placeholder for %q: %w", e.Name, err)
		}
		callee = placeholder
		if _, seen := b.unresolved[e.Name]; !seen {
			b.unresolved[e.Name] = struct{}{}
			b.diags.Append(diag.UnresolvedCallee(e.Name, e.FilePath, e.StartLine))
		}
	}

	if _, err := b.graph.addEdge(caller.ID, callee.ID); err != nil {
		return err
	}
	return nil
}

// Graph returns the graph being built. The pipeline freezes it, along
// with the table, once every fact has been applied.
func (b *Builder) Graph() *Graph {
	return b.graph
}
