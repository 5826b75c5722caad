// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"errors"
	"testing"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// makeTable builds a table containing function definitions for the
// given names, left in building state so placeholders can be added.
func makeTable(t *testing.T, diags *diag.List, names ...string) *symtab.Table {
	t.Helper()
	b := symtab.NewBuilder(diags)
	for i, name := range names {
		err := b.Apply(ast.RawEntity{
			Kind:      ast.EntityFunctionDef,
			Name:      name,
			FilePath:  "src/" + name + ".c",
			StartLine: 10 * (i + 1),
		})
		if err != nil {
			t.Fatalf("Apply(%s): %v", name, err)
		}
	}
	return b.Table()
}

func makeCall(caller, callee, file string, line int) ast.RawEntity {
	return ast.RawEntity{
		Kind:      ast.EntityCall,
		Name:      callee,
		Caller:    caller,
		FilePath:  file,
		StartLine: line,
	}
}

func TestBuilder_ResolvesDeclaredCallee(t *testing.T) {
	var diags diag.List
	table := makeTable(t, &diags, "foo", "bar")
	b := NewBuilder(table, &diags)

	if err := b.AddCall(makeCall("foo", "bar", "src/foo.c", 12)); err != nil {
		t.Fatalf("AddCall: %v", err)
	}

	foo, _ := table.Lookup("foo")
	bar, _ := table.Lookup("bar")
	if !b.Graph().HasEdge(foo.ID, bar.ID) {
		t.Error("edge (foo, bar) missing")
	}
	if b.Graph().Len() != 1 {
		t.Errorf("graph has %d edges, want 1", b.Graph().Len())
	}
	if diags.Len() != 0 {
		t.Errorf("unexpected diagnostics: %v", diags.Items())
	}
}

func TestBuilder_DuplicateCallsCollapse(t *testing.T) {
	var diags diag.List
	table := makeTable(t, &diags, "foo", "bar")
	b := NewBuilder(table, &diags)

	// Three textual call sites, one distinct pair.
	for _, line := range []int{12, 15, 40} {
		if err := b.AddCall(makeCall("foo", "bar", "src/foo.c", line)); err != nil {
			t.Fatalf("AddCall: %v", err)
		}
	}

	if b.Graph().Len() != 1 {
		t.Errorf("graph has %d edges, want 1", b.Graph().Len())
	}
}

func TestBuilder_SelfLoopPreservedOnce(t *testing.T) {
	var diags diag.List
	table := makeTable(t, &diags, "fib")
	b := NewBuilder(table, &diags)

	if err := b.AddCall(makeCall("fib", "fib", "src/fib.c", 4)); err != nil {
		t.Fatalf("AddCall: %v", err)
	}
	if err := b.AddCall(makeCall("fib", "fib", "src/fib.c", 5)); err != nil {
		t.Fatalf("AddCall: %v", err)
	}

	fib, _ := table.Lookup("fib")
	if !b.Graph().HasEdge(fib.ID, fib.ID) {
		t.Fatal("recursive call must keep its self-loop edge")
	}
	if b.Graph().Len() != 1 {
		t.Errorf("graph has %d edges, want exactly one self-loop", b.Graph().Len())
	}
}

func TestBuilder_UnknownCalleeGetsPlaceholder(t *testing.T) {
	var diags diag.List
	table := makeTable(t, &diags, "foo")
	b := NewBuilder(table, &diags)

	for _, line := range []int{3, 9} {
		if err := b.AddCall(makeCall("foo", "libc_malloc", "src/foo.c", line)); err != nil {
			t.Fatalf("AddCall: %v", err)
		}
	}

	placeholder, ok := table.Lookup("libc_malloc")
	if !ok {
		t.Fatal("placeholder not added to the table")
	}
	if placeholder.HasDefinition {
		t.Error("placeholder has HasDefinition = true")
	}
	if !placeholder.IsExternal() {
		t.Errorf("placeholder kind = %s, want external", placeholder.Kind)
	}

	foo, _ := table.Lookup("foo")
	if !b.Graph().HasEdge(foo.ID, placeholder.ID) {
		t.Error("edge to placeholder missing")
	}

	// Diagnosed once per name, not once per call site.
	if got := len(diags.ByCode(diag.CodeUnresolvedCallee)); got != 1 {
		t.Errorf("got %d unresolved_callee diagnostics, want 1", got)
	}
}

func TestBuilder_UnknownCallerDropsFact(t *testing.T) {
	var diags diag.List
	table := makeTable(t, &diags, "bar")
	b := NewBuilder(table, &diags)

	if err := b.AddCall(makeCall("ghost", "bar", "src/x.c", 7)); err != nil {
		t.Fatalf("AddCall: %v", err)
	}

	if b.Graph().Len() != 0 {
		t.Error("dropped fact must not create an edge")
	}
	if _, ok := table.Lookup("ghost"); ok {
		t.Error("dropped caller must not enter the table")
	}
	dropped := diags.ByCode(diag.CodeUnattributedCall)
	if len(dropped) != 1 {
		t.Fatalf("got %d unattributed_call diagnostics, want 1", len(dropped))
	}
	if dropped[0].Symbol != "ghost" {
		t.Errorf("diagnostic symbol = %q, want ghost", dropped[0].Symbol)
	}
}

func TestBuilder_MalformedCallFact(t *testing.T) {
	var diags diag.List
	table := makeTable(t, &diags, "foo")
	b := NewBuilder(table, &diags)

	if err := b.AddCall(ast.RawEntity{Kind: ast.EntityCall, Caller: "foo", FilePath: "src/foo.c", StartLine: 2}); err != nil {
		t.Fatalf("AddCall: %v", err)
	}

	if b.Graph().Len() != 0 {
		t.Error("malformed fact must not create an edge")
	}
	if len(diags.ByCode(diag.CodeMalformedEntity)) != 1 {
		t.Errorf("want one malformed_entity diagnostic, got %v", diags.Items())
	}
}

func TestBuilder_RejectsDeclarationFacts(t *testing.T) {
	var diags diag.List
	b := NewBuilder(makeTable(t, &diags), &diags)

	err := b.AddCall(ast.RawEntity{Kind: ast.EntityFunctionDef, Name: "foo"})
	if !errors.Is(err, ErrNotCall) {
		t.Errorf("AddCall(def) = %v, want ErrNotCall", err)
	}
}

func TestGraph_FrozenRejectsAddCall(t *testing.T) {
	var diags diag.List
	table := makeTable(t, &diags, "foo", "bar")
	b := NewBuilder(table, &diags)
	b.Graph().Freeze()

	err := b.AddCall(makeCall("foo", "bar", "src/foo.c", 1))
	if !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("AddCall after Freeze = %v, want ErrGraphFrozen", err)
	}
}

func TestGraph_DeterministicEdgeOrder(t *testing.T) {
	var diags diag.List
	table := makeTable(t, &diags, "a", "b", "c")
	b := NewBuilder(table, &diags)

	for _, pair := range [][2]string{{"c", "a"}, {"a", "b"}, {"b", "libc_puts"}, {"a", "c"}} {
		if err := b.AddCall(makeCall(pair[0], pair[1], "src/x.c", 1)); err != nil {
			t.Fatalf("AddCall(%v): %v", pair, err)
		}
	}

	edges := b.Graph().Edges()
	for i := 1; i < len(edges); i++ {
		prev, cur := edges[i-1], edges[i]
		if prev.CallerID > cur.CallerID ||
			(prev.CallerID == cur.CallerID && prev.CalleeID >= cur.CalleeID) {
			t.Errorf("edges not sorted at %d: %v then %v", i, prev, cur)
		}
	}
}

func TestGraph_Adjacency(t *testing.T) {
	var diags diag.List
	table := makeTable(t, &diags, "a", "b", "c")
	b := NewBuilder(table, &diags)

	for _, pair := range [][2]string{{"a", "b"}, {"a", "c"}, {"c", "b"}} {
		if err := b.AddCall(makeCall(pair[0], pair[1], "src/x.c", 1)); err != nil {
			t.Fatalf("AddCall(%v): %v", pair, err)
		}
	}

	a, _ := table.Lookup("a")
	bSym, _ := table.Lookup("b")
	g := b.Graph()

	if g.OutDegree(a.ID) != 2 {
		t.Errorf("OutDegree(a) = %d, want 2", g.OutDegree(a.ID))
	}
	if g.InDegree(bSym.ID) != 2 {
		t.Errorf("InDegree(b) = %d, want 2", g.InDegree(bSym.ID))
	}

	// Both adjacency directions must agree with the edge set.
	for _, e := range g.Edges() {
		if !contains(g.CalleeIDs(e.CallerID), e.CalleeID) {
			t.Errorf("callee %s missing from CalleeIDs(%s)", e.CalleeID, e.CallerID)
		}
		if !contains(g.CallerIDs(e.CalleeID), e.CallerID) {
			t.Errorf("caller %s missing from CallerIDs(%s)", e.CallerID, e.CalleeID)
		}
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
