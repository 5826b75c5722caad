// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package overview aggregates a finished build into the report shown
// by the CLI and the HTTP service.
package overview

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// topN bounds the hotspot lists.
const topN = 10

// Hotspot is one function ranked by graph degree.
type Hotspot struct {
	Name   string `json:"name"`
	File   string `json:"file,omitempty"`
	Degree int    `json:"degree"`
}

// AmbiguousEntry surfaces one flagged symbol with all its locations.
type AmbiguousEntry struct {
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	Locations []symtab.Location `json:"locations"`
}

// Report is the aggregated view of one build.
type Report struct {
	ProjectRoot string `json:"project_root"`
	RunID       string `json:"run_id"`

	Files         int `json:"files"`
	FilesFailed   int `json:"files_failed"`
	Symbols       int `json:"symbols"`
	Functions     int `json:"functions"`
	Defined       int `json:"defined_functions"`
	PrototypeOnly int `json:"prototype_only_functions"`
	Externals     int `json:"external_placeholders"`
	Edges         int `json:"edges"`
	SelfLoops     int `json:"self_loops"`

	// Classes counts walked files per classification label.
	Classes map[string]int `json:"classes"`

	// TopCallers ranks by out-degree, TopCallees by in-degree.
	TopCallers []Hotspot `json:"top_callers"`
	TopCallees []Hotspot `json:"top_callees"`

	Ambiguous []AmbiguousEntry `json:"ambiguous"`

	// ExternalFamilies groups placeholder names by libc family.
	ExternalFamilies map[string][]string `json:"external_families"`

	// DiagnosticCounts per code, plus the ordered list.
	DiagnosticCounts map[string]int    `json:"diagnostic_counts"`
	Diagnostics      []diag.Diagnostic `json:"diagnostics,omitempty"`
}

// libc families recognized for external placeholder grouping, checked
// in order. Everything else lands in "other".
var libcFamilies = []struct {
	family   string
	prefixes []string
}{
	{"allocation", []string{"malloc", "calloc", "realloc", "free", "alloca"}},
	{"string", []string{"str", "mem", "wcs"}},
	{"stdio", []string{"printf", "fprintf", "sprintf", "snprintf", "scanf", "fscanf",
		"sscanf", "puts", "putc", "gets", "getc", "fget", "fput", "fopen", "fclose",
		"fread", "fwrite", "fseek", "ftell", "fflush", "perror"}},
	{"process", []string{"exit", "abort", "atexit", "system", "exec", "fork", "wait", "signal", "kill"}},
	{"math", []string{"sin", "cos", "tan", "exp", "log", "pow", "sqrt", "fabs", "floor", "ceil", "round"}},
	{"io", []string{"open", "close", "read", "write", "lseek", "ioctl", "fcntl", "stat", "fstat"}},
}

// Build aggregates one finished pipeline result.
func Build(result *pipeline.Result, projectRoot string) (*Report, error) {
	if result == nil {
		return nil, fmt.Errorf("result must not be nil")
	}
	if !result.Table.Frozen() || !result.Graph.Frozen() {
		return nil, fmt.Errorf("cannot report on an unfinished build")
	}

	r := &Report{
		ProjectRoot:      projectRoot,
		RunID:            result.Stats.RunID,
		Files:            result.Stats.FilesWalked,
		FilesFailed:      result.Stats.FilesFailed,
		Symbols:          result.Table.Len(),
		Edges:            result.Graph.Len(),
		Classes:          make(map[string]int),
		ExternalFamilies: make(map[string][]string),
		DiagnosticCounts: make(map[string]int),
		Diagnostics:      result.Diagnostics.Items(),
	}

	for _, f := range result.Files {
		r.Classes[string(f.Class)]++
	}
	for code, n := range result.Diagnostics.Counts() {
		r.DiagnosticCounts[string(code)] = n
	}

	var externals []string
	for _, sym := range result.Table.Symbols() {
		switch {
		case sym.Kind == symtab.KindExternal:
			r.Externals++
			externals = append(externals, sym.Name)
		case sym.Kind == symtab.KindFunction:
			r.Functions++
			if sym.HasDefinition {
				r.Defined++
			} else {
				r.PrototypeOnly++
			}
		}
		if sym.Ambiguous {
			r.Ambiguous = append(r.Ambiguous, AmbiguousEntry{
				Name:      sym.Name,
				Kind:      sym.Kind.String(),
				Locations: sym.Locations,
			})
		}
	}
	sort.Slice(r.Ambiguous, func(i, j int) bool { return r.Ambiguous[i].Name < r.Ambiguous[j].Name })

	sort.Strings(externals)
	for _, name := range externals {
		family := familyFor(name)
		r.ExternalFamilies[family] = append(r.ExternalFamilies[family], name)
	}

	r.TopCallers, r.TopCallees, r.SelfLoops = rankDegrees(result)
	return r, nil
}

// familyFor classifies one external name into a libc family.
func familyFor(name string) string {
	lower := strings.ToLower(name)
	// Accept common vendor prefixes like "libc_" or leading underscores.
	lower = strings.TrimPrefix(lower, "libc_")
	lower = strings.TrimLeft(lower, "_")
	for _, f := range libcFamilies {
		for _, p := range f.prefixes {
			if strings.HasPrefix(lower, p) {
				return f.family
			}
		}
	}
	return "other"
}

// rankDegrees produces the hotspot lists and counts self-loops.
func rankDegrees(result *pipeline.Result) (callers, callees []Hotspot, selfLoops int) {
	type degrees struct {
		out, in int
	}
	byID := make(map[string]*degrees)
	for _, e := range result.Graph.Edges() {
		if e.CallerID == e.CalleeID {
			selfLoops++
		}
		if byID[e.CallerID] == nil {
			byID[e.CallerID] = &degrees{}
		}
		if byID[e.CalleeID] == nil {
			byID[e.CalleeID] = &degrees{}
		}
		byID[e.CallerID].out++
		byID[e.CalleeID].in++
	}

	for id, d := range byID {
		sym, ok := result.Table.ByID(id)
		if !ok {
			continue
		}
		if d.out > 0 {
			callers = append(callers, Hotspot{Name: sym.Name, File: sym.File, Degree: d.out})
		}
		if d.in > 0 {
			callees = append(callees, Hotspot{Name: sym.Name, File: sym.File, Degree: d.in})
		}
	}
	rank := func(hs []Hotspot) []Hotspot {
		sort.Slice(hs, func(i, j int) bool {
			if hs[i].Degree != hs[j].Degree {
				return hs[i].Degree > hs[j].Degree
			}
			return hs[i].Name < hs[j].Name
		})
		if len(hs) > topN {
			hs = hs[:topN]
		}
		return hs
	}
	return rank(callers), rank(callees), selfLoops
}

// EncodeJSON renders the report for --json consumers.
func (r *Report) EncodeJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
