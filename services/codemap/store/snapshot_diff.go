// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"fmt"
	"sort"

	"github.com/LunarLaurus/codebuddy/services/codemap/callgraph"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// SymbolChange describes one symbol that exists in both snapshots but
// differs in content.
type SymbolChange struct {
	Name string `json:"name"`
	ID   string `json:"id"`

	// Fields that changed, sorted: "definition", "file", "hash",
	// "kind", "line", "ambiguous".
	Fields []string `json:"fields"`
}

// SnapshotDiff is the structural difference between two payloads.
// Symbols are matched by id, edges by (caller, callee).
type SnapshotDiff struct {
	// AddedSymbols are present only in the newer payload, sorted by name.
	AddedSymbols []*symtab.Symbol `json:"added_symbols"`

	// RemovedSymbols are present only in the older payload, sorted by name.
	RemovedSymbols []*symtab.Symbol `json:"removed_symbols"`

	// ChangedSymbols exist in both but differ, sorted by name.
	ChangedSymbols []SymbolChange `json:"changed_symbols"`

	// AddedEdges and RemovedEdges in canonical (caller, callee) order.
	AddedEdges   []callgraph.Edge `json:"added_edges"`
	RemovedEdges []callgraph.Edge `json:"removed_edges"`
}

// Empty reports whether the two payloads are structurally identical.
func (d *SnapshotDiff) Empty() bool {
	return len(d.AddedSymbols) == 0 && len(d.RemovedSymbols) == 0 &&
		len(d.ChangedSymbols) == 0 && len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// DiffPayloads computes the structural diff from old to new.
//
// Description:
// Compares symbol sets by id and edge sets by pair. A symbol present
// in both payloads is reported as changed when its kind, definition
// status, ambiguity flag, canonical location, or snippet hash moved.
// Identical MapHash values short-circuit to an empty diff.
func DiffPayloads(oldP, newP *Payload) (*SnapshotDiff, error) {
	if oldP == nil || newP == nil {
		return nil, fmt.Errorf("both payloads must be non-nil")
	}
	d := &SnapshotDiff{}
	if oldP.MapHash != "" && oldP.MapHash == newP.MapHash {
		return d, nil
	}

	oldByID := make(map[string]*symtab.Symbol, len(oldP.Symbols))
	for _, s := range oldP.Symbols {
		oldByID[s.ID] = s
	}
	newByID := make(map[string]*symtab.Symbol, len(newP.Symbols))
	for _, s := range newP.Symbols {
		newByID[s.ID] = s
	}

	for _, s := range newP.Symbols {
		prev, ok := oldByID[s.ID]
		if !ok {
			d.AddedSymbols = append(d.AddedSymbols, s)
			continue
		}
		if fields := changedFields(prev, s); len(fields) > 0 {
			d.ChangedSymbols = append(d.ChangedSymbols, SymbolChange{
				Name:   s.Name,
				ID:     s.ID,
				Fields: fields,
			})
		}
	}
	for _, s := range oldP.Symbols {
		if _, ok := newByID[s.ID]; !ok {
			d.RemovedSymbols = append(d.RemovedSymbols, s)
		}
	}

	oldEdges := make(map[callgraph.Edge]struct{}, len(oldP.Edges))
	for _, e := range oldP.Edges {
		oldEdges[e] = struct{}{}
	}
	newEdges := make(map[callgraph.Edge]struct{}, len(newP.Edges))
	for _, e := range newP.Edges {
		newEdges[e] = struct{}{}
	}
	for _, e := range newP.Edges {
		if _, ok := oldEdges[e]; !ok {
			d.AddedEdges = append(d.AddedEdges, e)
		}
	}
	for _, e := range oldP.Edges {
		if _, ok := newEdges[e]; !ok {
			d.RemovedEdges = append(d.RemovedEdges, e)
		}
	}

	sort.Slice(d.AddedSymbols, func(i, j int) bool { return d.AddedSymbols[i].Name < d.AddedSymbols[j].Name })
	sort.Slice(d.RemovedSymbols, func(i, j int) bool { return d.RemovedSymbols[i].Name < d.RemovedSymbols[j].Name })
	sort.Slice(d.ChangedSymbols, func(i, j int) bool { return d.ChangedSymbols[i].Name < d.ChangedSymbols[j].Name })
	sortEdges(d.AddedEdges)
	sortEdges(d.RemovedEdges)
	return d, nil
}

func changedFields(oldS, newS *symtab.Symbol) []string {
	var fields []string
	if oldS.Kind != newS.Kind {
		fields = append(fields, "kind")
	}
	if oldS.HasDefinition != newS.HasDefinition {
		fields = append(fields, "definition")
	}
	if oldS.Ambiguous != newS.Ambiguous {
		fields = append(fields, "ambiguous")
	}
	if oldS.File != newS.File {
		fields = append(fields, "file")
	}
	if oldS.Line != newS.Line {
		fields = append(fields, "line")
	}
	if oldS.Hash != newS.Hash {
		fields = append(fields, "hash")
	}
	sort.Strings(fields)
	return fields
}

func sortEdges(edges []callgraph.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].CallerID != edges[j].CallerID {
			return edges[i].CallerID < edges[j].CallerID
		}
		return edges[i].CalleeID < edges[j].CalleeID
	})
}
