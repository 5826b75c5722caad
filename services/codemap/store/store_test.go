// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/callgraph"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

// buildResult assembles a small frozen build: foo defined in a.c calls
// bar (defined in b.c) and the external libc_malloc.
func buildResult(t *testing.T) *pipeline.Result {
	t.Helper()
	var diags diag.List
	sb := symtab.NewBuilder(&diags)
	decls := []ast.RawEntity{
		{Kind: ast.EntityFunctionProto, Name: "foo", FilePath: "include/foo.h", StartLine: 1},
		{Kind: ast.EntityFunctionDef, Name: "foo", FilePath: "src/a.c", StartLine: 2, Snippet: "int foo(void) { return bar(); }"},
		{Kind: ast.EntityFunctionDef, Name: "bar", FilePath: "src/b.c", StartLine: 1, Snippet: "int bar(void) { return 42; }"},
	}
	for _, e := range decls {
		if err := sb.Apply(e); err != nil {
			t.Fatal(err)
		}
	}
	cb := callgraph.NewBuilder(sb.Table(), &diags)
	calls := []ast.RawEntity{
		{Kind: ast.EntityCall, Name: "bar", Caller: "foo", FilePath: "src/a.c", StartLine: 3},
		{Kind: ast.EntityCall, Name: "libc_malloc", Caller: "foo", FilePath: "src/a.c", StartLine: 4},
	}
	for _, e := range calls {
		if err := cb.AddCall(e); err != nil {
			t.Fatal(err)
		}
	}
	table := sb.Table()
	graph := cb.Graph()
	table.Freeze()
	graph.Freeze()
	return &pipeline.Result{
		Table:       table,
		Graph:       graph,
		Projector:   views.NewProjector(table, graph),
		Diagnostics: &diags,
		Stats: pipeline.BuildStats{
			RunID:   "test-run",
			Symbols: table.Len(),
			Edges:   graph.Len(),
		},
	}
}

func TestPayload_RoundTrip(t *testing.T) {
	result := buildResult(t)
	payload, err := NewPayload(result, "/tmp/proj")
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	if payload.MapHash == "" {
		t.Fatal("MapHash not set")
	}

	data, err := payload.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodePayload(data)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}

	table, graph, err := decoded.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !table.Frozen() || !graph.Frozen() {
		t.Error("restored structures must be frozen")
	}
	if !reflect.DeepEqual(table.Names(), result.Table.Names()) {
		t.Errorf("names after round trip = %v, want %v", table.Names(), result.Table.Names())
	}
	if !reflect.DeepEqual(graph.Edges(), result.Graph.Edges()) {
		t.Errorf("edges after round trip = %v, want %v", graph.Edges(), result.Graph.Edges())
	}
	if decoded.DiagnosticsList().Len() != result.Diagnostics.Len() {
		t.Errorf("diagnostics after round trip = %d, want %d",
			decoded.DiagnosticsList().Len(), result.Diagnostics.Len())
	}
}

func TestPayload_HashIgnoresTimestamps(t *testing.T) {
	result := buildResult(t)
	p1, err := NewPayload(result, "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := NewPayload(result, "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}
	p2.BuiltAtMilli = p1.BuiltAtMilli + 60_000
	if p1.MapHash != p2.MapHash {
		t.Error("MapHash must not depend on build time")
	}
}

func TestPayload_RejectsUnfrozenBuild(t *testing.T) {
	var diags diag.List
	sb := symtab.NewBuilder(&diags)
	table := sb.Table()
	graph := callgraph.NewGraph()
	result := &pipeline.Result{
		Table:       table,
		Graph:       graph,
		Projector:   views.NewProjector(table, graph),
		Diagnostics: &diags,
	}
	if _, err := NewPayload(result, "/tmp/proj"); err == nil {
		t.Fatal("serializing an unfrozen build must fail")
	}
}

func TestPayload_SchemaVersionCheck(t *testing.T) {
	tests := []struct {
		version string
		wantErr bool
	}{
		{"v1.0.0", false},
		{"v1.2.3", false},
		{"v2.0.0", true},
		{"garbage", true},
		{"", true},
	}
	for _, tc := range tests {
		p := &Payload{SchemaVersion: tc.version}
		err := p.checkSchema()
		if (err != nil) != tc.wantErr {
			t.Errorf("checkSchema(%q) error = %v, wantErr %v", tc.version, err, tc.wantErr)
		}
	}
}

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotManager_SaveLoad(t *testing.T) {
	db := openTestDB(t)
	m, err := NewSnapshotManager(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	payload, err := NewPayload(buildResult(t), "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}

	meta, err := m.Save(ctx, payload, "first build")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.SnapshotID == "" || meta.MapHash != payload.MapHash {
		t.Errorf("metadata wrong: %+v", meta)
	}
	if meta.SymbolCount != len(payload.Symbols) || meta.EdgeCount != len(payload.Edges) {
		t.Errorf("metadata counts = %d/%d, want %d/%d",
			meta.SymbolCount, meta.EdgeCount, len(payload.Symbols), len(payload.Edges))
	}

	loaded, loadedMeta, err := m.Load(ctx, meta.SnapshotID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.MapHash != payload.MapHash {
		t.Error("loaded payload hash differs")
	}
	if loadedMeta.Label != "first build" {
		t.Errorf("label = %q, want %q", loadedMeta.Label, "first build")
	}
}

func TestSnapshotManager_LoadLatestAndList(t *testing.T) {
	db := openTestDB(t)
	m, _ := NewSnapshotManager(db, nil)
	ctx := context.Background()

	payload, err := NewPayload(buildResult(t), "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}

	first, err := m.Save(ctx, payload, "one")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Save(ctx, payload, "two")
	if err != nil {
		t.Fatal(err)
	}

	latest, latestMeta, err := m.LoadLatest(ctx, "/tmp/proj")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if latestMeta.SnapshotID != second.SnapshotID {
		t.Errorf("latest = %s, want %s", latestMeta.SnapshotID, second.SnapshotID)
	}
	if latest.MapHash != payload.MapHash {
		t.Error("latest payload hash differs")
	}

	metas, err := m.List(ctx, "/tmp/proj")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("List returned %d snapshots, want 2", len(metas))
	}
	ids := map[string]bool{metas[0].SnapshotID: true, metas[1].SnapshotID: true}
	if !ids[first.SnapshotID] || !ids[second.SnapshotID] {
		t.Errorf("List missing a snapshot: %v", ids)
	}
}

func TestSnapshotManager_Delete(t *testing.T) {
	db := openTestDB(t)
	m, _ := NewSnapshotManager(db, nil)
	ctx := context.Background()

	payload, err := NewPayload(buildResult(t), "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}
	meta, err := m.Save(ctx, payload, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, meta.SnapshotID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := m.Load(ctx, meta.SnapshotID); err == nil {
		t.Fatal("loading a deleted snapshot must fail")
	}
}

func TestSnapshotManager_LoadUnknownID(t *testing.T) {
	db := openTestDB(t)
	m, _ := NewSnapshotManager(db, nil)
	if _, _, err := m.Load(context.Background(), "no-such-id"); err == nil {
		t.Fatal("loading an unknown snapshot must fail")
	}
}

func TestDiffPayloads(t *testing.T) {
	result := buildResult(t)
	oldP, err := NewPayload(result, "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("identical payloads diff empty", func(t *testing.T) {
		d, err := DiffPayloads(oldP, oldP)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Empty() {
			t.Errorf("diff of identical payloads not empty: %+v", d)
		}
	})

	t.Run("added symbol and edge", func(t *testing.T) {
		newP, err := NewPayload(result, "/tmp/proj")
		if err != nil {
			t.Fatal(err)
		}
		extra := &symtab.Symbol{
			ID: symtab.SymbolID("baz"), Name: "baz",
			Kind: symtab.KindFunction, HasDefinition: true,
			File: "src/c.c", Line: 1,
		}
		newP.Symbols = append(newP.Symbols, extra)
		newP.Edges = append(newP.Edges, callgraph.Edge{
			CallerID: symtab.SymbolID("bar"), CalleeID: extra.ID,
		})
		newP.MapHash = "changed"

		d, err := DiffPayloads(oldP, newP)
		if err != nil {
			t.Fatal(err)
		}
		if len(d.AddedSymbols) != 1 || d.AddedSymbols[0].Name != "baz" {
			t.Errorf("AddedSymbols = %v, want [baz]", d.AddedSymbols)
		}
		if len(d.AddedEdges) != 1 {
			t.Errorf("AddedEdges = %v, want one edge", d.AddedEdges)
		}
		if len(d.RemovedSymbols) != 0 || len(d.RemovedEdges) != 0 {
			t.Error("nothing was removed")
		}
	})

	t.Run("changed symbol fields", func(t *testing.T) {
		newP, err := NewPayload(result, "/tmp/proj")
		if err != nil {
			t.Fatal(err)
		}
		// Deep-copy the symbol we mutate so oldP stays intact.
		for i, s := range newP.Symbols {
			if s.Name == "bar" {
				moved := *s
				moved.File = "src/moved.c"
				moved.Line = 99
				newP.Symbols[i] = &moved
			}
		}
		newP.MapHash = "changed"

		d, err := DiffPayloads(oldP, newP)
		if err != nil {
			t.Fatal(err)
		}
		if len(d.ChangedSymbols) != 1 {
			t.Fatalf("ChangedSymbols = %v, want one entry", d.ChangedSymbols)
		}
		got := d.ChangedSymbols[0]
		if got.Name != "bar" {
			t.Errorf("changed symbol = %s, want bar", got.Name)
		}
		if !reflect.DeepEqual(got.Fields, []string{"file", "line"}) {
			t.Errorf("changed fields = %v, want [file line]", got.Fields)
		}
	})
}

func TestExportSQLite(t *testing.T) {
	payload, err := NewPayload(buildResult(t), "/tmp/proj")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "map.db")
	if err := ExportSQLite(context.Background(), payload, path, nil); err != nil {
		t.Fatalf("ExportSQLite: %v", err)
	}

	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var symbols, edges int
	if err := db.QueryRow(`SELECT COUNT(*) FROM symbols`).Scan(&symbols); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM call_edges`).Scan(&edges); err != nil {
		t.Fatal(err)
	}
	if symbols != len(payload.Symbols) || edges != len(payload.Edges) {
		t.Errorf("exported %d symbols, %d edges; want %d, %d",
			symbols, edges, len(payload.Symbols), len(payload.Edges))
	}

	var callers int
	err = db.QueryRow(`SELECT COUNT(*) FROM call_edges WHERE callee_id =
		(SELECT id FROM symbols WHERE name = 'bar')`).Scan(&callers)
	if err != nil {
		t.Fatal(err)
	}
	if callers != 1 {
		t.Errorf("callers of bar in export = %d, want 1", callers)
	}

	var mapHash string
	if err := db.QueryRow(`SELECT value FROM map_meta WHERE key = 'map_hash'`).Scan(&mapHash); err != nil {
		t.Fatal(err)
	}
	if mapHash != payload.MapHash {
		t.Errorf("exported map_hash = %s, want %s", mapHash, payload.MapHash)
	}
}
