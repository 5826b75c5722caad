// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symtab

import (
	"errors"
	"testing"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
)

// makeEntity builds a declaration fact for tests.
func makeEntity(kind ast.EntityKind, name, file string, line int) ast.RawEntity {
	snippet := name + "@" + file
	return ast.RawEntity{
		Kind:      kind,
		Name:      name,
		FilePath:  file,
		StartLine: line,
		EndLine:   line + 2,
		Snippet:   snippet,
		Hash:      ast.SnippetHash(snippet),
	}
}

func mustApply(t *testing.T, b *Builder, entities ...ast.RawEntity) {
	t.Helper()
	for _, e := range entities {
		if err := b.Apply(e); err != nil {
			t.Fatalf("Apply(%s %q): %v", e.Kind, e.Name, err)
		}
	}
}

func TestBuilder_PrototypeThenDefinitionPromotes(t *testing.T) {
	var diags diag.List
	b := NewBuilder(&diags)

	mustApply(t, b,
		makeEntity(ast.EntityFunctionProto, "foo", "include/foo.h", 3),
		makeEntity(ast.EntityFunctionDef, "foo", "src/foo.c", 10),
	)

	sym, ok := b.Table().Lookup("foo")
	if !ok {
		t.Fatal("foo not in table")
	}
	if !sym.HasDefinition {
		t.Error("HasDefinition = false after definition merged")
	}
	if sym.Ambiguous {
		t.Error("promotion must not flag the symbol ambiguous")
	}
	if len(sym.Locations) != 2 {
		t.Fatalf("got %d locations, want 2", len(sym.Locations))
	}
	if sym.File != "src/foo.c" || sym.Line != 10 {
		t.Errorf("canonical location = %s:%d, want src/foo.c:10", sym.File, sym.Line)
	}
	if diags.Len() != 0 {
		t.Errorf("unexpected diagnostics: %v", diags.Items())
	}
}

func TestBuilder_DefinitionThenPrototypeKeepsCanonical(t *testing.T) {
	var diags diag.List
	b := NewBuilder(&diags)

	mustApply(t, b,
		makeEntity(ast.EntityFunctionDef, "foo", "src/foo.c", 10),
		makeEntity(ast.EntityFunctionProto, "foo", "include/foo.h", 3),
	)

	sym, _ := b.Table().Lookup("foo")
	if sym.File != "src/foo.c" || sym.Line != 10 {
		t.Errorf("prototype moved the canonical location to %s:%d", sym.File, sym.Line)
	}
	if len(sym.Locations) != 2 {
		t.Errorf("got %d locations, want 2", len(sym.Locations))
	}
}

func TestBuilder_DoubleDefinitionFirstWins(t *testing.T) {
	var diags diag.List
	b := NewBuilder(&diags)

	// Two files each defining init(): the first processed (per the
	// fixed lexicographic file order) stays canonical.
	mustApply(t, b,
		makeEntity(ast.EntityFunctionDef, "init", "src/a.c", 5),
		makeEntity(ast.EntityFunctionDef, "init", "src/b.c", 8),
	)

	sym, _ := b.Table().Lookup("init")
	if !sym.Ambiguous {
		t.Error("Ambiguous = false after a second definition")
	}
	if sym.File != "src/a.c" || sym.Line != 5 {
		t.Errorf("canonical location = %s:%d, want src/a.c:5", sym.File, sym.Line)
	}
	if len(sym.Locations) != 2 {
		t.Fatalf("got %d locations, want 2", len(sym.Locations))
	}
	if sym.Locations[1] != (Location{File: "src/b.c", Line: 8}) {
		t.Errorf("second location = %+v", sym.Locations[1])
	}

	ambiguities := diags.ByCode(diag.CodeAmbiguousDefinition)
	if len(ambiguities) != 1 {
		t.Fatalf("got %d ambiguity diagnostics, want 1", len(ambiguities))
	}
	if ambiguities[0].Symbol != "init" || ambiguities[0].File != "src/b.c" {
		t.Errorf("diagnostic should point at the losing definition: %+v", ambiguities[0])
	}
}

func TestBuilder_EmptyNameSkippedWithDiagnostic(t *testing.T) {
	var diags diag.List
	b := NewBuilder(&diags)

	e := makeEntity(ast.EntityFunctionDef, "", "src/broken.c", 12)
	if err := b.Apply(e); err != nil {
		t.Fatalf("empty name must not fail the build: %v", err)
	}

	if b.Table().Len() != 0 {
		t.Error("a nameless fact must not create a symbol")
	}
	if len(diags.ByCode(diag.CodeMalformedEntity)) != 1 {
		t.Errorf("want one malformed_entity diagnostic, got %v", diags.Items())
	}
}

func TestBuilder_KindConflictIsAmbiguous(t *testing.T) {
	var diags diag.List
	b := NewBuilder(&diags)

	mustApply(t, b,
		makeEntity(ast.EntityStruct, "buffer", "src/buf.h", 2),
		makeEntity(ast.EntityFunctionDef, "buffer", "src/buf.c", 20),
	)

	sym, _ := b.Table().Lookup("buffer")
	if !sym.Ambiguous {
		t.Error("kind conflict must flag the symbol ambiguous")
	}
	if sym.Kind != KindStruct {
		t.Errorf("first-wins kind = %s, want struct", sym.Kind)
	}
	if len(diags.ByCode(diag.CodeAmbiguousDefinition)) != 1 {
		t.Error("kind conflict must be diagnosed")
	}
}

func TestBuilder_NonFunctionMerge(t *testing.T) {
	t.Run("identical redefinition is silent", func(t *testing.T) {
		var diags diag.List
		b := NewBuilder(&diags)

		e := makeEntity(ast.EntityTypedef, "u32", "include/types.h", 4)
		mustApply(t, b, e, e)

		sym, _ := b.Table().Lookup("u32")
		if sym.Ambiguous {
			t.Error("identical redefinition flagged ambiguous")
		}
		if len(sym.Locations) != 2 {
			t.Errorf("got %d locations, want 2", len(sym.Locations))
		}
		if diags.Len() != 0 {
			t.Errorf("unexpected diagnostics: %v", diags.Items())
		}
	})

	t.Run("conflicting redefinition is ambiguous", func(t *testing.T) {
		var diags diag.List
		b := NewBuilder(&diags)

		mustApply(t, b,
			makeEntity(ast.EntityStruct, "config", "src/a.h", 2),
			makeEntity(ast.EntityStruct, "config", "src/b.h", 9),
		)

		sym, _ := b.Table().Lookup("config")
		if !sym.Ambiguous {
			t.Error("conflicting struct redefinition not flagged")
		}
		if sym.File != "src/a.h" {
			t.Errorf("canonical file = %s, want src/a.h", sym.File)
		}
	})
}

func TestBuilder_RejectsCallFacts(t *testing.T) {
	var diags diag.List
	b := NewBuilder(&diags)

	err := b.Apply(ast.RawEntity{Kind: ast.EntityCall, Name: "foo", Caller: "bar"})
	if !errors.Is(err, ErrNotDeclaration) {
		t.Errorf("Apply(call) = %v, want ErrNotDeclaration", err)
	}
}

func TestBuilder_FrozenTableRejectsApply(t *testing.T) {
	var diags diag.List
	b := NewBuilder(&diags)
	b.Table().Freeze()

	err := b.Apply(makeEntity(ast.EntityFunctionDef, "foo", "src/foo.c", 1))
	if !errors.Is(err, ErrTableFrozen) {
		t.Errorf("Apply after Freeze = %v, want ErrTableFrozen", err)
	}
}

func TestTable_AddPlaceholder(t *testing.T) {
	tbl := NewTable()

	p1, err := tbl.AddPlaceholder("libc_malloc")
	if err != nil {
		t.Fatalf("AddPlaceholder: %v", err)
	}
	if p1.HasDefinition {
		t.Error("placeholder has HasDefinition = true")
	}
	if !p1.IsExternal() {
		t.Error("placeholder kind is not external")
	}

	p2, err := tbl.AddPlaceholder("libc_malloc")
	if err != nil {
		t.Fatalf("second AddPlaceholder: %v", err)
	}
	if p1 != p2 {
		t.Error("repeated AddPlaceholder must reuse the existing symbol")
	}
	if tbl.Len() != 1 {
		t.Errorf("table has %d symbols, want 1", tbl.Len())
	}

	tbl.Freeze()
	if _, err := tbl.AddPlaceholder("libc_free"); !errors.Is(err, ErrTableFrozen) {
		t.Errorf("AddPlaceholder after Freeze = %v, want ErrTableFrozen", err)
	}
}

func TestTable_AddPlaceholderCollidesWithDeclared(t *testing.T) {
	var diags diag.List
	b := NewBuilder(&diags)
	mustApply(t, b, makeEntity(ast.EntityFunctionDef, "foo", "src/foo.c", 1))

	if _, err := b.Table().AddPlaceholder("foo"); !errors.Is(err, ErrSymbolExists) {
		t.Errorf("AddPlaceholder(declared name) = %v, want ErrSymbolExists", err)
	}
}

func TestSymbolID_StableAndDistinctFromExternal(t *testing.T) {
	if SymbolID("foo") != SymbolID("foo") {
		t.Error("SymbolID is not stable")
	}
	if SymbolID("foo") == SymbolID("bar") {
		t.Error("distinct names share an id")
	}
	if SymbolID("foo") == ExternalID("foo") {
		t.Error("declared and external ids must never collide")
	}
}

func TestTable_DeterministicIteration(t *testing.T) {
	var diags diag.List
	b := NewBuilder(&diags)
	mustApply(t, b,
		makeEntity(ast.EntityFunctionDef, "zeta", "src/z.c", 1),
		makeEntity(ast.EntityFunctionDef, "alpha", "src/a.c", 1),
		makeEntity(ast.EntityStruct, "mid", "src/m.h", 1),
	)

	names := b.Table().Names()
	if len(names) != 3 || names[0] != "alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Errorf("Names() = %v, want sorted", names)
	}

	symbols := b.Table().Symbols()
	for i := 1; i < len(symbols); i++ {
		if symbols[i-1].ID >= symbols[i].ID {
			t.Errorf("Symbols() not sorted by id at %d", i)
		}
	}
}
