// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symtab

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for table state violations.
var (
	// ErrTableFrozen is returned when mutating a frozen table.
	ErrTableFrozen = errors.New("symbol table is frozen")

	// ErrSymbolExists is returned when adding a placeholder for a name
	// that already has a declared symbol.
	ErrSymbolExists = errors.New("symbol already exists")
)

// tableState tracks the table lifecycle.
type tableState int

const (
	stateBuilding tableState = iota
	stateReadOnly
)

// Table maps each name in the corpus to exactly one canonical Symbol.
//
// A Table starts in building state, is populated by a Builder (and by
// the call graph builder, which adds external placeholders), and is
// then frozen. A frozen table rejects all mutation and is safe for
// concurrent readers.
type Table struct {
	byName map[string]*Symbol
	byID   map[string]*Symbol
	state  tableState
}

// NewTable creates an empty table in building state.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]*Symbol),
		byID:   make(map[string]*Symbol),
	}
}

// Lookup returns the symbol for a name, exact and case-sensitive.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// ByID returns the symbol with the given id.
func (t *Table) ByID(id string) (*Symbol, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// Len returns the number of symbols, placeholders included.
func (t *Table) Len() int {
	return len(t.byName)
}

// Frozen reports whether the table has been frozen.
func (t *Table) Frozen() bool {
	return t.state == stateReadOnly
}

// Freeze moves the table to read-only state. Idempotent.
func (t *Table) Freeze() {
	t.state = stateReadOnly
}

// Names returns every symbol name in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Symbols returns every symbol sorted by id, the canonical iteration
// order for serialization and reporting.
func (t *Table) Symbols() []*Symbol {
	out := make([]*Symbol, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SymbolsByKind returns the symbols of one kind, sorted by name.
func (t *Table) SymbolsByKind(kind SymbolKind) []*Symbol {
	var out []*Symbol
	for _, s := range t.byID {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AmbiguousSymbols returns the symbols flagged ambiguous, sorted by name.
func (t *Table) AmbiguousSymbols() []*Symbol {
	var out []*Symbol
	for _, s := range t.byID {
		if s.Ambiguous {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddPlaceholder inserts an external placeholder symbol for a callee
// name never declared in the corpus.
//
// Outputs:
//   - *Symbol: The existing placeholder if one was already created for
//     the name, otherwise a fresh one.
//   - error: ErrTableFrozen after Freeze; ErrSymbolExists if the name
//     already has a declared (non-external) symbol.
func (t *Table) AddPlaceholder(name string) (*Symbol, error) {
	if t.state == stateReadOnly {
		return nil, ErrTableFrozen
	}
	if existing, ok := t.byName[name]; ok {
		if existing.Kind == KindExternal {
			return existing, nil
		}
		return nil, ErrSymbolExists
	}
	s := &Symbol{
		ID:   ExternalID(name),
		Name: name,
		Kind: KindExternal,
	}
	t.byName[name] = s
	t.byID[s.ID] = s
	return s, nil
}

// insert adds a fresh symbol during the merge. Caller guarantees the
// name is not present and the table is building.
func (t *Table) insert(s *Symbol) {
	t.byName[s.Name] = s
	t.byID[s.ID] = s
}

// NewTableFromSymbols reconstructs a frozen table from serialized
// symbols, rebuilding both indexes.
//
// Outputs:
//   - *Table: Frozen and ready for queries.
//   - error: Non-nil on a nil symbol, an empty name or id, or a
//     duplicate name or id.
func NewTableFromSymbols(symbols []*Symbol) (*Table, error) {
	t := NewTable()
	for i, s := range symbols {
		if s == nil {
			return nil, fmt.Errorf("symbol %d is nil", i)
		}
		if s.Name == "" || s.ID == "" {
			return nil, fmt.Errorf("symbol %d missing name or id", i)
		}
		if _, exists := t.byName[s.Name]; exists {
			return nil, fmt.Errorf("duplicate symbol name %q", s.Name)
		}
		if _, exists := t.byID[s.ID]; exists {
			return nil, fmt.Errorf("duplicate symbol id %q", s.ID)
		}
		t.insert(s)
	}
	t.Freeze()
	return t, nil
}
