// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package callgraph resolves call facts against the finished symbol
// table and builds the deduplicated edge set.
//
// Resolution is exact and case-sensitive. An unknown caller drops the
// fact (diagnosed); an unknown callee resolves to an external
// placeholder added to the same table, so every edge has two valid
// endpoints. A function calling itself keeps exactly one self-loop
// edge: recursion is a feature of the graph, never filtered.
//
// # Thread Safety
//
// A Builder and a building Graph belong to a single goroutine. After
// Freeze the graph is immutable and safe for concurrent readers.
package callgraph

import (
	"errors"
	"fmt"
	"sort"
)

// ErrGraphFrozen is returned when mutating a frozen graph.
var ErrGraphFrozen = errors.New("call graph is frozen")

// Edge is one distinct caller/callee pair. However many textual call
// sites produced it, the pair appears in the graph once.
type Edge struct {
	CallerID string `json:"caller"`
	CalleeID string `json:"callee"`
}

// Graph is the deduplicated call edge set with adjacency indexes in
// both directions.
type Graph struct {
	edges   map[Edge]struct{}
	callees map[string]map[string]struct{} // caller id -> callee ids
	callers map[string]map[string]struct{} // callee id -> caller ids
	frozen  bool
}

// NewGraph creates an empty graph in building state.
func NewGraph() *Graph {
	return &Graph{
		edges:   make(map[Edge]struct{}),
		callees: make(map[string]map[string]struct{}),
		callers: make(map[string]map[string]struct{}),
	}
}

// addEdge inserts one edge, deduplicating repeats.
//
// Outputs:
//   - bool: True if the edge was new.
//   - error: ErrGraphFrozen after Freeze.
func (g *Graph) addEdge(callerID, calleeID string) (bool, error) {
	if g.frozen {
		return false, ErrGraphFrozen
	}
	e := Edge{CallerID: callerID, CalleeID: calleeID}
	if _, exists := g.edges[e]; exists {
		return false, nil
	}
	g.edges[e] = struct{}{}
	if g.callees[callerID] == nil {
		g.callees[callerID] = make(map[string]struct{})
	}
	g.callees[callerID][calleeID] = struct{}{}
	if g.callers[calleeID] == nil {
		g.callers[calleeID] = make(map[string]struct{})
	}
	g.callers[calleeID][callerID] = struct{}{}
	return true, nil
}

// HasEdge reports whether the distinct pair is in the graph.
func (g *Graph) HasEdge(callerID, calleeID string) bool {
	_, ok := g.edges[Edge{CallerID: callerID, CalleeID: calleeID}]
	return ok
}

// Len returns the number of distinct edges.
func (g *Graph) Len() int {
	return len(g.edges)
}

// Frozen reports whether the graph has been frozen.
func (g *Graph) Frozen() bool {
	return g.frozen
}

// Freeze moves the graph to read-only state. Idempotent.
func (g *Graph) Freeze() {
	g.frozen = true
}

// Edges returns every edge sorted by caller id then callee id, the
// canonical iteration order for serialization and reporting.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CallerID != out[j].CallerID {
			return out[i].CallerID < out[j].CallerID
		}
		return out[i].CalleeID < out[j].CalleeID
	})
	return out
}

// CalleeIDs returns the sorted ids called by the given symbol.
func (g *Graph) CalleeIDs(callerID string) []string {
	return sortedKeys(g.callees[callerID])
}

// CallerIDs returns the sorted ids that call the given symbol.
func (g *Graph) CallerIDs(calleeID string) []string {
	return sortedKeys(g.callers[calleeID])
}

// OutDegree returns the number of distinct callees of a symbol.
func (g *Graph) OutDegree(callerID string) int {
	return len(g.callees[callerID])
}

// InDegree returns the number of distinct callers of a symbol.
func (g *Graph) InDegree(calleeID string) int {
	return len(g.callers[calleeID])
}

// NewGraphFromEdges reconstructs a frozen graph from serialized edges.
//
// Duplicate pairs in the input collapse silently, matching build
// semantics; an edge missing either endpoint id is an error.
func NewGraphFromEdges(edges []Edge) (*Graph, error) {
	g := NewGraph()
	for i, e := range edges {
		if e.CallerID == "" || e.CalleeID == "" {
			return nil, fmt.Errorf("edge %d missing an endpoint id", i)
		}
		if _, err := g.addEdge(e.CallerID, e.CalleeID); err != nil {
			return nil, err
		}
	}
	g.Freeze()
	return g, nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
