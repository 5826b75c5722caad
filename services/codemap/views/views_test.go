// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package views

import (
	"errors"
	"testing"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/callgraph"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// buildProjector assembles a small frozen table/graph pair:
// file A defines foo() which calls bar() and libc_malloc();
// file B defines bar() with no calls.
func buildProjector(t *testing.T) *Projector {
	t.Helper()
	var diags diag.List

	sb := symtab.NewBuilder(&diags)
	defs := []struct {
		name, file string
		line       int
	}{
		{"foo", "src/a.c", 5},
		{"bar", "src/b.c", 3},
	}
	for _, d := range defs {
		err := sb.Apply(ast.RawEntity{
			Kind: ast.EntityFunctionDef, Name: d.name, FilePath: d.file, StartLine: d.line,
		})
		if err != nil {
			t.Fatalf("Apply(%s): %v", d.name, err)
		}
	}

	cb := callgraph.NewBuilder(sb.Table(), &diags)
	calls := []struct {
		caller, callee string
	}{
		{"foo", "bar"},
		{"foo", "libc_malloc"},
	}
	for _, c := range calls {
		err := cb.AddCall(ast.RawEntity{
			Kind: ast.EntityCall, Caller: c.caller, Name: c.callee,
			FilePath: "src/a.c", StartLine: 6,
		})
		if err != nil {
			t.Fatalf("AddCall(%s->%s): %v", c.caller, c.callee, err)
		}
	}

	sb.Table().Freeze()
	cb.Graph().Freeze()
	return NewProjector(sb.Table(), cb.Graph())
}

func TestProjector_TwoFileScenario(t *testing.T) {
	p := buildProjector(t)

	callees, err := p.CalleesOf("foo")
	if err != nil {
		t.Fatalf("CalleesOf(foo): %v", err)
	}
	if len(callees) != 2 || callees[0].Name != "bar" || callees[1].Name != "libc_malloc" {
		t.Errorf("callees-of(foo) = %v, want [bar libc_malloc]", names(callees))
	}

	callers, err := p.CallersOf("bar")
	if err != nil {
		t.Fatalf("CallersOf(bar): %v", err)
	}
	if len(callers) != 1 || callers[0].Name != "foo" {
		t.Errorf("callers-of(bar) = %v, want [foo]", names(callers))
	}

	if got, _ := p.CallersOf("foo"); len(got) != 0 {
		t.Errorf("callers-of(foo) = %v, want empty", names(got))
	}
	if got, _ := p.CalleesOf("bar"); len(got) != 0 {
		t.Errorf("callees-of(bar) = %v, want empty", names(got))
	}
}

func TestProjector_ProjectionsAgree(t *testing.T) {
	p := buildProjector(t)

	// Every edge appears in both directions and nowhere else.
	pairCount := 0
	for _, e := range p.Graph().Edges() {
		caller, _ := p.Table().ByID(e.CallerID)
		callee, _ := p.Table().ByID(e.CalleeID)

		callees, _ := p.CalleesOf(caller.Name)
		if !containsName(callees, callee.Name) {
			t.Errorf("%s missing from callees-of(%s)", callee.Name, caller.Name)
		}
		callers, _ := p.CallersOf(callee.Name)
		if !containsName(callers, caller.Name) {
			t.Errorf("%s missing from callers-of(%s)", caller.Name, callee.Name)
		}
		pairCount++
	}

	// No extra pairs: total projected pairs equals the edge count.
	projected := 0
	for _, name := range p.Table().Names() {
		callees, _ := p.CalleesOf(name)
		projected += len(callees)
	}
	if projected != pairCount {
		t.Errorf("projected %d pairs, graph has %d edges", projected, pairCount)
	}
}

func TestProjector_FunctionView(t *testing.T) {
	p := buildProjector(t)

	view, err := p.FunctionView("foo")
	if err != nil {
		t.Fatalf("FunctionView(foo): %v", err)
	}
	if view.Name != "foo" || view.File != "src/a.c" || !view.HasDefinition {
		t.Errorf("unexpected view identity: %+v", view)
	}
	if len(view.Callers) != 0 {
		t.Errorf("Callers = %v, want empty", view.Callers)
	}
	if len(view.Callees) != 2 || view.Callees[0] != "bar" || view.Callees[1] != "libc_malloc" {
		t.Errorf("Callees = %v, want sorted [bar libc_malloc]", view.Callees)
	}

	// Views resolve by id too.
	byID, err := p.FunctionView(view.ID)
	if err != nil {
		t.Fatalf("FunctionView(id): %v", err)
	}
	if byID.Name != "foo" {
		t.Errorf("FunctionView(id).Name = %q, want foo", byID.Name)
	}
}

func TestProjector_ExternalPlaceholderView(t *testing.T) {
	p := buildProjector(t)

	view, err := p.FunctionView("libc_malloc")
	if err != nil {
		t.Fatalf("FunctionView(libc_malloc): %v", err)
	}
	if view.HasDefinition {
		t.Error("external placeholder has HasDefinition = true")
	}
	if !view.External {
		t.Error("external placeholder not marked External")
	}
	if len(view.Callers) != 1 || view.Callers[0] != "foo" {
		t.Errorf("Callers = %v, want [foo]", view.Callers)
	}
}

func TestProjector_UnknownSymbol(t *testing.T) {
	p := buildProjector(t)

	if _, err := p.FunctionView("nope"); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("FunctionView(nope) = %v, want ErrSymbolNotFound", err)
	}
	if _, err := p.CalleesOf("nope"); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("CalleesOf(nope) = %v, want ErrSymbolNotFound", err)
	}
}

func TestProjector_AllFunctionViews(t *testing.T) {
	p := buildProjector(t)

	all := p.AllFunctionViews()
	if len(all) != 3 {
		t.Fatalf("got %d views, want 3 (foo, bar, libc_malloc)", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Name >= all[i].Name {
			t.Errorf("views not sorted by name at %d", i)
		}
	}
}

func names(symbols []*symtab.Symbol) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = s.Name
	}
	return out
}

func containsName(symbols []*symtab.Symbol, name string) bool {
	for _, s := range symbols {
		if s.Name == name {
			return true
		}
	}
	return false
}
