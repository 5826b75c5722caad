// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symtab

import (
	"errors"
	"fmt"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
)

// ErrNotDeclaration is returned when a call fact is fed to the symbol
// table builder. Call facts belong to the call graph builder.
var ErrNotDeclaration = errors.New("entity is not a declaration fact")

// Builder merges declaration facts into a canonical symbol table.
//
// Facts must be applied in the fixed deterministic order (lexicographic
// file path, then source order within a file): promotion and collision
// outcomes depend on which fact arrives first. The builder itself does
// not sort; the pipeline buffers and orders phase-1 results before
// replaying them here.
//
// Thread Safety: a Builder belongs to a single goroutine.
type Builder struct {
	table *Table
	diags *diag.List
}

// NewBuilder creates a builder that appends its diagnostics to diags.
func NewBuilder(diags *diag.List) *Builder {
	return &Builder{
		table: NewTable(),
		diags: diags,
	}
}

// Apply merges one declaration fact into the table.
//
// Description:
//
//	Implements the per-name merge policy. A fact with an empty name is
//	skipped and recorded as a MalformedEntity diagnostic; it never
//	creates a symbol and never fails the build.
//
// Inputs:
//   - e: One extracted fact. Must not be a call fact.
//
// Outputs:
//   - error: ErrNotDeclaration for call facts, ErrTableFrozen after
//     Finalize. Nil for every merge outcome, including collisions.
func (b *Builder) Apply(e ast.RawEntity) error {
	if e.Kind == ast.EntityCall {
		return ErrNotDeclaration
	}
	if b.table.Frozen() {
		return ErrTableFrozen
	}

	if e.Name == "" {
		b.diags.Append(diag.MalformedEntity(e.FilePath, e.StartLine,
			fmt.Sprintf("%s entity has no name", e.Kind)))
		return nil
	}

	kind := kindForEntity(e.Kind)
	if kind == KindUnknown {
		b.diags.Append(diag.MalformedEntity(e.FilePath, e.StartLine,
			fmt.Sprintf("entity %q has unknown kind", e.Name)))
		return nil
	}

	loc := Location{File: e.FilePath, Line: e.StartLine}

	existing, ok := b.table.Lookup(e.Name)
	if !ok {
		b.table.insert(&Symbol{
			ID:            SymbolID(e.Name),
			Name:          e.Name,
			Kind:          kind,
			HasDefinition: e.Kind == ast.EntityFunctionDef,
			File:          e.FilePath,
			Line:          e.StartLine,
			Locations:     []Location{loc},
			Snippet:       e.Snippet,
			Hash:          e.Hash,
		})
		return nil
	}

	// Every occurrence is recorded, whatever the merge outcome. The
	// canonical File/Line only move on prototype promotion.
	existing.Locations = append(existing.Locations, loc)

	if existing.Kind != kind {
		// A name reused across kind-classes (a struct and a function
		// both named "buffer") is a collision, not a merge.
		b.markAmbiguous(existing, e, fmt.Sprintf(
			"%s %q already declared as %s at %s:%d",
			kind, e.Name, existing.Kind, existing.File, existing.Line))
		return nil
	}

	if kind == KindFunction {
		b.mergeFunction(existing, e)
		return nil
	}

	// Non-function kinds: first-wins. A redefinition with identical
	// text (the same header included twice, a repeated extern) is
	// harmless; a different body is a competing definition.
	if e.Hash != "" && existing.Hash != "" && e.Hash != existing.Hash {
		b.markAmbiguous(existing, e, fmt.Sprintf(
			"%s %q redefined with different body, first definition at %s:%d kept",
			kind, e.Name, existing.File, existing.Line))
	}
	return nil
}

// mergeFunction applies the function-specific merge rules. The new
// fact's location has already been appended.
func (b *Builder) mergeFunction(existing *Symbol, e ast.RawEntity) {
	if e.Kind == ast.EntityFunctionProto {
		// A prototype never changes canonical status.
		return
	}

	if !existing.HasDefinition {
		// Prototype-only symbol meets its definition: promote. The
		// canonical location becomes the definition's.
		existing.HasDefinition = true
		existing.File = e.FilePath
		existing.Line = e.StartLine
		existing.Snippet = e.Snippet
		existing.Hash = e.Hash
		return
	}

	// Second definition of an already defined name. First-wins keeps
	// the merge deterministic; the collision is surfaced, not hidden.
	b.markAmbiguous(existing, e, fmt.Sprintf(
		"function %q redefined, first definition at %s:%d kept",
		e.Name, existing.File, existing.Line))
}

// markAmbiguous flags the symbol and records the collision.
func (b *Builder) markAmbiguous(s *Symbol, e ast.RawEntity, detail string) {
	s.Ambiguous = true
	b.diags.Append(diag.AmbiguousDefinition(e.Name, e.FilePath, e.StartLine, detail))
}

// Table returns the table being built. The call graph builder adds
// external placeholders to it before the pipeline freezes both.
func (b *Builder) Table() *Table {
	return b.table
}
