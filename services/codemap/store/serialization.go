// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists finished code maps: schema-versioned JSON
// serialization, BadgerDB snapshots, snapshot diffing, SQLite export,
// and GCS backup.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/mod/semver"

	"github.com/LunarLaurus/codebuddy/services/codemap/callgraph"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// SchemaVersion is the serialization schema version. Loading rejects
// payloads from a different major version.
const SchemaVersion = "v1.0.0"

// Payload is the JSON-serializable representation of one build:
// everything needed to answer queries later without re-running it.
//
// Symbols are sorted by id and edges by (caller, callee), so encoding
// the same build twice yields byte-identical JSON and a stable hash.
type Payload struct {
	SchemaVersion string            `json:"schema_version"`
	ProjectRoot   string            `json:"project_root"`
	BuiltAtMilli  int64             `json:"built_at_milli"`
	MapHash       string            `json:"map_hash"`
	Stats         pipeline.BuildStats `json:"stats"`
	Symbols       []*symtab.Symbol  `json:"symbols"`
	Edges         []callgraph.Edge  `json:"edges"`
	Diagnostics   []diag.Diagnostic `json:"diagnostics"`
}

// NewPayload serializes a completed build.
//
// Inputs:
//   - result: A frozen build result.
//   - projectRoot: Recorded for listing and key grouping.
//
// Outputs:
//   - *Payload: Deterministic representation with MapHash filled in.
//   - error: Non-nil when the result's table or graph is not frozen.
func NewPayload(result *pipeline.Result, projectRoot string) (*Payload, error) {
	if result == nil {
		return nil, fmt.Errorf("result must not be nil")
	}
	if !result.Table.Frozen() || !result.Graph.Frozen() {
		return nil, fmt.Errorf("cannot serialize an unfinished build")
	}

	p := &Payload{
		SchemaVersion: SchemaVersion,
		ProjectRoot:   projectRoot,
		BuiltAtMilli:  time.Now().UnixMilli(),
		Stats:         result.Stats,
		Symbols:       result.Table.Symbols(),
		Edges:         result.Graph.Edges(),
		Diagnostics:   result.Diagnostics.Items(),
	}
	hash, err := p.computeHash()
	if err != nil {
		return nil, err
	}
	p.MapHash = hash
	return p, nil
}

// Restore reconstructs the frozen table and graph from a payload.
//
// Outputs:
//   - error: Schema version mismatch or structurally invalid data.
func (p *Payload) Restore() (*symtab.Table, *callgraph.Graph, error) {
	if err := p.checkSchema(); err != nil {
		return nil, nil, err
	}
	table, err := symtab.NewTableFromSymbols(p.Symbols)
	if err != nil {
		return nil, nil, fmt.Errorf("restore table: %w", err)
	}
	graph, err := callgraph.NewGraphFromEdges(p.Edges)
	if err != nil {
		return nil, nil, fmt.Errorf("restore graph: %w", err)
	}
	return table, graph, nil
}

// DiagnosticsList rebuilds the diagnostics list from the payload.
func (p *Payload) DiagnosticsList() *diag.List {
	var l diag.List
	for _, d := range p.Diagnostics {
		l.Append(d)
	}
	return &l
}

// checkSchema validates the payload's schema version against ours.
// Same major version is readable; anything else is rejected.
func (p *Payload) checkSchema() error {
	if !semver.IsValid(p.SchemaVersion) {
		return fmt.Errorf("invalid schema version %q", p.SchemaVersion)
	}
	if semver.Major(p.SchemaVersion) != semver.Major(SchemaVersion) {
		return fmt.Errorf("incompatible schema version %q (this build reads %s)",
			p.SchemaVersion, semver.Major(SchemaVersion))
	}
	return nil
}

// computeHash hashes the structural content: symbols, edges, and
// diagnostics, but not timestamps or the run id. Two builds of the
// same tree produce the same MapHash.
func (p *Payload) computeHash() (string, error) {
	structural := struct {
		Symbols     []*symtab.Symbol  `json:"symbols"`
		Edges       []callgraph.Edge  `json:"edges"`
		Diagnostics []diag.Diagnostic `json:"diagnostics"`
	}{p.Symbols, p.Edges, p.Diagnostics}

	data, err := json.Marshal(structural)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Encode renders the payload as JSON.
func (p *Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses and schema-checks a serialized payload.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := p.checkSchema(); err != nil {
		return nil, err
	}
	return &p, nil
}
