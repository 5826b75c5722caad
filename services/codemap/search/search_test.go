// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"reflect"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/LunarLaurus/codebuddy/services/codemap/summarize"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// buildTable assembles a frozen table from name/kind pairs.
func buildTable(t *testing.T, names ...string) *symtab.Table {
	t.Helper()
	symbols := make([]*symtab.Symbol, 0, len(names))
	for _, name := range names {
		symbols = append(symbols, &symtab.Symbol{
			ID:            symtab.SymbolID(name),
			Name:          name,
			Kind:          symtab.KindFunction,
			HasDefinition: true,
			File:          "src/" + name + ".c",
			Line:          1,
		})
	}
	table, err := symtab.NewTableFromSymbols(symbols)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestFind_RankingOrder(t *testing.T) {
	table := buildTable(t,
		"parse_header",  // prefix match for "parse"
		"parse",         // exact match
		"reparse_all",   // substring match
		"parsr",         // fuzzy (1 edit from "parse")
		"write_output",  // no match
		"parse_trailer", // prefix, longer than parse_header? same length class
	)

	matches := Find(table, "parse", 10)
	if len(matches) == 0 {
		t.Fatal("no matches")
	}

	if matches[0].Symbol.Name != "parse" || matches[0].MatchType != matchExact {
		t.Errorf("best match = %s (%s), want parse (exact)", matches[0].Symbol.Name, matches[0].MatchType)
	}

	rank := make(map[string]int)
	for i, m := range matches {
		rank[m.Symbol.Name] = i
		if m.Symbol.Name == "write_output" {
			t.Error("unrelated symbol matched")
		}
	}
	if !(rank["parse"] < rank["parse_header"] && rank["parse_header"] < rank["reparse_all"]) {
		t.Errorf("class ordering violated: %v", rank)
	}
	if _, ok := rank["parsr"]; !ok {
		t.Error("fuzzy match parsr missing")
	}
	if !(rank["reparse_all"] < rank["parsr"]) {
		t.Errorf("substring must outrank fuzzy: %v", rank)
	}
}

func TestFind_CaseInsensitive(t *testing.T) {
	table := buildTable(t, "ProcessEvents")
	matches := Find(table, "processevents", 5)
	if len(matches) != 1 || matches[0].MatchType != matchExact {
		t.Errorf("case-insensitive exact match failed: %v", matches)
	}
}

func TestFind_LimitAndEmptyQuery(t *testing.T) {
	table := buildTable(t, "alpha_fn", "alpha_fx", "alpha_fy")
	if got := Find(table, "alpha", 2); len(got) != 2 {
		t.Errorf("limit ignored: got %d matches", len(got))
	}
	if got := Find(table, "  ", 5); got != nil {
		t.Errorf("blank query must return nil, got %v", got)
	}
}

func TestKeywordIndex_RanksSummaryText(t *testing.T) {
	table := buildTable(t, "alloc_buffer", "free_buffer", "hash_insert")
	report := &summarize.Report{
		Functions: []summarize.FunctionSummary{
			{SymbolID: symtab.SymbolID("alloc_buffer"), Text: "allocates memory from the arena pool"},
			{SymbolID: symtab.SymbolID("free_buffer"), Text: "releases memory back to the arena"},
			{SymbolID: symtab.SymbolID("hash_insert"), Text: "inserts an entry into the hash map"},
		},
	}
	idx := BuildKeywordIndex(table, report)

	hits := idx.Search("arena memory", 10)
	if len(hits) < 2 {
		t.Fatalf("got %d hits, want the two arena functions", len(hits))
	}
	for _, h := range hits {
		if h.Name == "hash_insert" {
			t.Error("hash_insert matched an arena query")
		}
	}
	if hits[0].Score != 1.0 {
		t.Errorf("best hit score = %f, want normalized 1.0", hits[0].Score)
	}
}

func TestKeywordIndex_NameTermsMatch(t *testing.T) {
	table := buildTable(t, "socket_listen", "socket_accept", "timer_reset")
	idx := BuildKeywordIndex(table, nil)

	hits := idx.Search("socket", 10)
	if len(hits) != 2 {
		t.Fatalf("got %d hits for socket, want 2: %v", len(hits), hits)
	}
}

func TestKeywordIndex_Deterministic(t *testing.T) {
	table := buildTable(t, "read_block", "write_block", "sync_block")
	idx := BuildKeywordIndex(table, nil)
	first := idx.Search("block", 10)
	second := idx.Search("block", 10)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical queries returned different rankings")
	}
}

func TestKeywordIndex_Empty(t *testing.T) {
	idx := BuildKeywordIndex(buildTable(t), nil)
	if got := idx.Search("anything", 5); got != nil {
		t.Errorf("empty index returned hits: %v", got)
	}
}

func TestEmbedCache_RoundTrip(t *testing.T) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cache, err := NewEmbedCache(db)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := cache.Get("missing"); err != nil || ok {
		t.Errorf("Get(missing) = ok=%v err=%v, want miss", ok, err)
	}

	vec := []float32{0.25, -1.5, 3.0, 0}
	if err := cache.Put("hash-a", vec); err != nil {
		t.Fatal(err)
	}
	got, ok, err := cache.Get("hash-a")
	if err != nil || !ok {
		t.Fatalf("Get(hash-a) = ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, vec) {
		t.Errorf("vector round trip = %v, want %v", got, vec)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("alloc_BufferPool returns the arena")
	for _, want := range []string{"alloc", "buffer", "pool", "arena"} {
		if _, ok := got[want]; !ok {
			t.Errorf("tokenize missing %q: %v", want, got)
		}
	}
	if _, ok := got["the"]; ok {
		t.Error("noise term survived tokenization")
	}
	if _, ok := got["returns"]; ok {
		t.Error("noise term 'returns' survived tokenization")
	}
}
