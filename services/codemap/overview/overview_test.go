// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package overview

import (
	"strings"
	"testing"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/callgraph"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

// buildResult assembles a small build: main calls parse (twice as
// distinct sites, one edge), parse calls itself and strlen + malloc.
func buildResult(t *testing.T) *pipeline.Result {
	t.Helper()
	var diags diag.List
	sb := symtab.NewBuilder(&diags)
	for _, e := range []ast.RawEntity{
		{Kind: ast.EntityFunctionDef, Name: "main", FilePath: "src/main.c", StartLine: 1},
		{Kind: ast.EntityFunctionDef, Name: "parse", FilePath: "src/parse.c", StartLine: 1},
		{Kind: ast.EntityFunctionProto, Name: "emit", FilePath: "include/emit.h", StartLine: 3},
	} {
		if err := sb.Apply(e); err != nil {
			t.Fatal(err)
		}
	}
	cb := callgraph.NewBuilder(sb.Table(), &diags)
	for _, e := range []ast.RawEntity{
		{Kind: ast.EntityCall, Name: "parse", Caller: "main", FilePath: "src/main.c", StartLine: 2},
		{Kind: ast.EntityCall, Name: "parse", Caller: "parse", FilePath: "src/parse.c", StartLine: 5},
		{Kind: ast.EntityCall, Name: "strlen", Caller: "parse", FilePath: "src/parse.c", StartLine: 6},
		{Kind: ast.EntityCall, Name: "malloc", Caller: "parse", FilePath: "src/parse.c", StartLine: 7},
	} {
		if err := cb.AddCall(e); err != nil {
			t.Fatal(err)
		}
	}
	table, graph := sb.Table(), cb.Graph()
	table.Freeze()
	graph.Freeze()
	return &pipeline.Result{
		Table:       table,
		Graph:       graph,
		Projector:   views.NewProjector(table, graph),
		Diagnostics: &diags,
		Files: []pipeline.SourceFile{
			{Path: "include/emit.h", Class: pipeline.ClassHeader},
			{Path: "src/main.c", Class: pipeline.ClassSource},
			{Path: "src/parse.c", Class: pipeline.ClassSource},
		},
		Stats: pipeline.BuildStats{RunID: "run-1", FilesWalked: 3},
	}
}

func TestBuild_Aggregates(t *testing.T) {
	r, err := Build(buildResult(t), "/tmp/proj")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if r.Functions != 3 || r.Defined != 2 || r.PrototypeOnly != 1 {
		t.Errorf("function counts = %d/%d/%d, want 3/2/1", r.Functions, r.Defined, r.PrototypeOnly)
	}
	if r.Externals != 2 {
		t.Errorf("externals = %d, want 2 (strlen, malloc)", r.Externals)
	}
	if r.Edges != 4 {
		t.Errorf("edges = %d, want 4", r.Edges)
	}
	if r.SelfLoops != 1 {
		t.Errorf("self loops = %d, want 1", r.SelfLoops)
	}
	if r.Classes["source"] != 2 || r.Classes["header"] != 1 {
		t.Errorf("class counts wrong: %v", r.Classes)
	}

	// parse has in-degree 2 (main + itself) and tops the callee list.
	if len(r.TopCallees) == 0 || r.TopCallees[0].Name != "parse" || r.TopCallees[0].Degree != 2 {
		t.Errorf("top callee = %+v, want parse with degree 2", r.TopCallees)
	}
	// parse has out-degree 3 and tops the caller list.
	if len(r.TopCallers) == 0 || r.TopCallers[0].Name != "parse" || r.TopCallers[0].Degree != 3 {
		t.Errorf("top caller = %+v, want parse with degree 3", r.TopCallers)
	}
}

func TestBuild_ExternalFamilies(t *testing.T) {
	r, err := Build(buildResult(t), "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}
	if got := r.ExternalFamilies["allocation"]; len(got) != 1 || got[0] != "malloc" {
		t.Errorf("allocation family = %v, want [malloc]", got)
	}
	if got := r.ExternalFamilies["string"]; len(got) != 1 || got[0] != "strlen" {
		t.Errorf("string family = %v, want [strlen]", got)
	}
}

func TestFamilyFor(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"malloc", "allocation"},
		{"free", "allocation"},
		{"strcpy", "string"},
		{"memset", "string"},
		{"printf", "stdio"},
		{"fopen", "stdio"},
		{"exit", "process"},
		{"sqrt", "math"},
		{"ioctl", "io"},
		{"libc_malloc", "allocation"},
		{"__memcpy_chk", "string"},
		{"custom_helper", "other"},
	}
	for _, tc := range tests {
		if got := familyFor(tc.name); got != tc.want {
			t.Errorf("familyFor(%s) = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestBuild_RejectsUnfrozen(t *testing.T) {
	var diags diag.List
	sb := symtab.NewBuilder(&diags)
	result := &pipeline.Result{
		Table:       sb.Table(),
		Graph:       callgraph.NewGraph(),
		Diagnostics: &diags,
	}
	if _, err := Build(result, "/tmp/proj"); err == nil {
		t.Fatal("unfrozen build must be rejected")
	}
}

func TestRender_PlainOutput(t *testing.T) {
	r, err := Build(buildResult(t), "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}
	out := r.render(false)

	for _, want := range []string{
		"Code map: /tmp/proj",
		"functions      3 (2 defined, 1 prototype-only)",
		"(1 recursive)",
		"unresolved_callee",
		"parse",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plain render missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain render contains escape codes")
	}
}

func TestEncodeJSON(t *testing.T) {
	r, err := Build(buildResult(t), "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}
	data, err := r.EncodeJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"self_loops": 1`) {
		t.Errorf("JSON missing self loop count: %s", data)
	}
}
