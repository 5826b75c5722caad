// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/callgraph"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

// scriptedClient replies with a canned line per prompt and records
// every prompt it saw.
type scriptedClient struct {
	prompts []string
	fail    bool
}

func (c *scriptedClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.fail {
		return "", errors.New("model down")
	}
	c.prompts = append(c.prompts, prompt)
	return "summary text", nil
}

func (c *scriptedClient) Model() string { return "scripted" }

// buildProjector assembles foo (a.c, calls bar) and bar (b.c).
func buildProjector(t *testing.T) *views.Projector {
	t.Helper()
	var diags diag.List
	sb := symtab.NewBuilder(&diags)
	decls := []ast.RawEntity{
		{Kind: ast.EntityFunctionDef, Name: "foo", FilePath: "src/a.c", StartLine: 1,
			Snippet: "int foo(void) { return bar(); }", Hash: "hash-foo"},
		{Kind: ast.EntityFunctionDef, Name: "bar", FilePath: "src/b.c", StartLine: 1,
			Snippet: "int bar(void) { return 42; }", Hash: "hash-bar"},
	}
	for _, e := range decls {
		if err := sb.Apply(e); err != nil {
			t.Fatal(err)
		}
	}
	cb := callgraph.NewBuilder(sb.Table(), &diags)
	if err := cb.AddCall(ast.RawEntity{Kind: ast.EntityCall, Name: "bar", Caller: "foo",
		FilePath: "src/a.c", StartLine: 1}); err != nil {
		t.Fatal(err)
	}
	table, graph := sb.Table(), cb.Graph()
	table.Freeze()
	graph.Freeze()
	return views.NewProjector(table, graph)
}

func TestSummarizer_Run(t *testing.T) {
	client := &scriptedClient{}
	s, err := NewSummarizer(client, nil)
	if err != nil {
		t.Fatal(err)
	}

	report, err := s.Run(context.Background(), buildProjector(t), "hash-1", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Functions) != 2 {
		t.Fatalf("summarized %d functions, want 2", len(report.Functions))
	}
	// Name order: bar before foo.
	if report.Functions[0].Name != "bar" || report.Functions[1].Name != "foo" {
		t.Errorf("function order = %s, %s; want bar, foo",
			report.Functions[0].Name, report.Functions[1].Name)
	}
	if len(report.Files) != 2 {
		t.Fatalf("summarized %d files, want 2", len(report.Files))
	}
	if report.MapHash != "hash-1" || report.Model != "scripted" {
		t.Errorf("report meta wrong: %+v", report)
	}

	// The foo prompt must carry the snippet and the callee context.
	var fooPrompt string
	for _, p := range client.prompts {
		if strings.Contains(p, "Function: foo") {
			fooPrompt = p
		}
	}
	if fooPrompt == "" {
		t.Fatal("no prompt generated for foo")
	}
	if !strings.Contains(fooPrompt, "return bar();") {
		t.Error("foo prompt missing snippet")
	}
	if !strings.Contains(fooPrompt, "Calls: bar") {
		t.Error("foo prompt missing callee context")
	}
}

func TestSummarizer_ReusesUnchangedHashes(t *testing.T) {
	projector := buildProjector(t)
	client := &scriptedClient{}
	s, _ := NewSummarizer(client, nil)
	ctx := context.Background()

	first, err := s.Run(ctx, projector, "hash-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := len(client.prompts)

	second, err := s.Run(ctx, projector, "hash-1", first)
	if err != nil {
		t.Fatal(err)
	}

	for _, f := range second.Functions {
		if !f.Reused {
			t.Errorf("function %s regenerated despite unchanged hash", f.Name)
		}
	}
	// Only the file refine passes run again.
	functionCalls := (len(client.prompts) - callsAfterFirst) - len(second.Files)
	if functionCalls != 0 {
		t.Errorf("%d function prompts on unchanged rebuild, want 0", functionCalls)
	}
}

func TestSummarizer_ModelFailureAborts(t *testing.T) {
	client := &scriptedClient{fail: true}
	s, _ := NewSummarizer(client, nil)
	if _, err := s.Run(context.Background(), buildProjector(t), "h", nil); err == nil {
		t.Error("model failure must abort the run")
	}
}

func TestReport_EncodeDecode(t *testing.T) {
	r := &Report{
		MapHash: "h",
		Model:   "m",
		Functions: []FunctionSummary{
			{SymbolID: "sym:1", Name: "foo", File: "a.c", Hash: "x", Text: "does things"},
		},
		Files: []FileSummary{{Path: "a.c", Text: "file text", Functions: []string{"foo"}}},
	}
	data, err := r.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeReport(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Functions[0].Name != "foo" || decoded.Files[0].Path != "a.c" {
		t.Errorf("round trip lost data: %+v", decoded)
	}
}
