// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

func TestRootCmd_SubcommandsRegistered(t *testing.T) {
	root := newRootCmd()
	want := []string{
		"map", "overview", "find", "callers", "callees", "watch", "refresh",
		"summarize", "search", "export", "snapshot", "projects", "browse",
	}
	have := map[string]bool{}
	for _, c := range root.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

func TestDescribeSymbol(t *testing.T) {
	tests := []struct {
		name string
		sym  *symtab.Symbol
		want string
	}{
		{
			name: "defined",
			sym:  &symtab.Symbol{Name: "parse", Kind: symtab.KindFunction, HasDefinition: true, File: "src/parse.c", Line: 10},
			want: "parse  src/parse.c:10",
		},
		{
			name: "prototype only",
			sym:  &symtab.Symbol{Name: "emit", Kind: symtab.KindFunction, File: "include/emit.h", Line: 3},
			want: "emit  include/emit.h:3 (prototype only)",
		},
		{
			name: "ambiguous",
			sym:  &symtab.Symbol{Name: "init", Kind: symtab.KindFunction, HasDefinition: true, Ambiguous: true, File: "src/a.c", Line: 1},
			want: "init  src/a.c:1 (ambiguous)",
		},
		{
			name: "external",
			sym:  &symtab.Symbol{Name: "malloc", Kind: symtab.KindExternal},
			want: "malloc (external)",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := describeSymbol(tc.sym); got != tc.want {
				t.Errorf("describeSymbol = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMapCommand_EndToEnd(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "main.c")
	if err := os.WriteFile(src, []byte("int main(void) { return helper(); }\nint helper(void) { return 1; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"map", "--root", root})
	t.Cleanup(func() { flagRoot, flagJSON = "", false })

	if err := cmd.Execute(); err != nil {
		t.Fatalf("map: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "symbols   2") {
		t.Errorf("map output missing symbol count:\n%s", out.String())
	}
}

func TestCallersCommand_EndToEnd(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "main.c")
	if err := os.WriteFile(src, []byte("int main(void) { return helper(); }\nint helper(void) { return 1; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"callers", "helper", "--root", root})
	t.Cleanup(func() { flagRoot, flagJSON = "", false })

	if err := cmd.Execute(); err != nil {
		t.Fatalf("callers: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "main") {
		t.Errorf("callers output missing main:\n%s", out.String())
	}
}
