// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diag defines the diagnostics taxonomy shared by every build
// stage of the code map.
//
// A build never fails because of a single bad fact. Instead, every
// dropped, skipped, or altered fact is recorded as a Diagnostic and the
// accumulated list travels with the finished symbol table and call
// graph. Consumers (CLI output, the HTTP service, snapshots) render the
// list; nothing in the core silently discards data.
//
// # Thread Safety
//
// A List is NOT safe for concurrent mutation. The build pipeline
// appends from a single writer goroutine; after the build completes the
// list is read-only.
package diag

import "fmt"

// Code identifies the class of a diagnostic.
//
// The string values are stable: they appear in serialized snapshots,
// JSON API responses, and log lines.
type Code string

const (
	// CodeParseFailure records a file that failed extraction entirely.
	// The remaining files are still processed.
	CodeParseFailure Code = "parse_failure"

	// CodeMalformedEntity records a raw fact missing a required field
	// (typically the name). The fact is skipped.
	CodeMalformedEntity Code = "malformed_entity"

	// CodeAmbiguousDefinition records a second definition of an already
	// defined name. The first definition stays canonical.
	CodeAmbiguousDefinition Code = "ambiguous_definition"

	// CodeUnresolvedCallee records a callee name never declared in the
	// corpus. The call still resolves, to an external placeholder.
	CodeUnresolvedCallee Code = "unresolved_callee"

	// CodeUnattributedCall records a call fact whose enclosing function
	// name is unknown. The fact is dropped.
	CodeUnattributedCall Code = "unattributed_call"
)

// Severity ranks how much a diagnostic should worry the reader.
type Severity string

const (
	// SeverityInfo marks expected conditions, such as calls into libc.
	SeverityInfo Severity = "info"

	// SeverityWarning marks conditions that lost or altered a fact.
	SeverityWarning Severity = "warning"
)

// Diagnostic is one recorded build condition.
//
// Fields:
//   - Code: The diagnostic class.
//   - Severity: Info or warning.
//   - File: Source file the condition was observed in. May be empty
//     for corpus-wide conditions.
//   - Line: 1-based line number, 0 when not applicable.
//   - Symbol: The symbol name involved, if any.
//   - Detail: Human-readable explanation.
type Diagnostic struct {
	Code     Code     `json:"code"`
	Severity Severity `json:"severity"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Symbol   string   `json:"symbol,omitempty"`
	Detail   string   `json:"detail"`
}

// String renders the diagnostic for log lines and plain CLI output.
func (d Diagnostic) String() string {
	loc := d.File
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d", d.File, d.Line)
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s", d.Code, d.Detail)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Code, loc, d.Detail)
}

// List accumulates diagnostics in build order.
//
// Build order is deterministic (files are merged in lexicographic
// order), so two builds of the same input produce the same list.
type List struct {
	items []Diagnostic
}

// Append adds one diagnostic to the list.
func (l *List) Append(d Diagnostic) {
	l.items = append(l.items, d)
}

// Extend appends every diagnostic from another list.
func (l *List) Extend(other *List) {
	if other == nil {
		return
	}
	l.items = append(l.items, other.items...)
}

// Items returns the recorded diagnostics in build order.
//
// The returned slice is a copy; mutating it does not affect the list.
func (l *List) Items() []Diagnostic {
	out := make([]Diagnostic, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of recorded diagnostics.
func (l *List) Len() int {
	return len(l.items)
}

// ByCode returns the diagnostics with the given code, in build order.
func (l *List) ByCode(code Code) []Diagnostic {
	var out []Diagnostic
	for _, d := range l.items {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Counts returns the number of diagnostics per code.
func (l *List) Counts() map[Code]int {
	counts := make(map[Code]int, 5)
	for _, d := range l.items {
		counts[d.Code]++
	}
	return counts
}

// ParseFailure builds a parse failure diagnostic for one file.
func ParseFailure(file, detail string) Diagnostic {
	return Diagnostic{
		Code:     CodeParseFailure,
		Severity: SeverityWarning,
		File:     file,
		Detail:   detail,
	}
}

// MalformedEntity builds a diagnostic for a fact missing a required field.
func MalformedEntity(file string, line int, detail string) Diagnostic {
	return Diagnostic{
		Code:     CodeMalformedEntity,
		Severity: SeverityWarning,
		File:     file,
		Line:     line,
		Detail:   detail,
	}
}

// AmbiguousDefinition builds a diagnostic for a colliding redefinition.
func AmbiguousDefinition(name, file string, line int, detail string) Diagnostic {
	return Diagnostic{
		Code:     CodeAmbiguousDefinition,
		Severity: SeverityWarning,
		File:     file,
		Line:     line,
		Symbol:   name,
		Detail:   detail,
	}
}

// UnresolvedCallee builds a diagnostic for a callee resolved to an
// external placeholder. This is informational: calls into libraries
// outside the corpus are expected.
func UnresolvedCallee(name, file string, line int) Diagnostic {
	return Diagnostic{
		Code:     CodeUnresolvedCallee,
		Severity: SeverityInfo,
		File:     file,
		Line:     line,
		Symbol:   name,
		Detail:   fmt.Sprintf("callee %q not declared in corpus, using external placeholder", name),
	}
}

// UnattributedCall builds a diagnostic for a dropped call fact whose
// enclosing function is not in the table.
func UnattributedCall(caller, callee, file string, line int) Diagnostic {
	return Diagnostic{
		Code:     CodeUnattributedCall,
		Severity: SeverityWarning,
		File:     file,
		Line:     line,
		Symbol:   caller,
		Detail:   fmt.Sprintf("call to %q dropped: enclosing function %q not in table", callee, caller),
	}
}
