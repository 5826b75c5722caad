// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package symtab builds the canonical cross-file symbol table.
//
// The builder consumes declaration facts (definitions, prototypes,
// structs, typedefs, globals) extracted from every file in the corpus
// and reconciles them into exactly one Symbol per name. Merge outcomes
// depend on processing order, so callers must apply facts in
// lexicographic file-path order and, within a file, source order; the
// pipeline package enforces that ordering.
//
// # Merge policy
//
// For function names: a definition promotes a prototype-only symbol; a
// second definition of an already defined name keeps the first
// definition canonical (first-wins) and flags the symbol ambiguous.
// Non-function kinds merge first-wins as well, flagged ambiguous when
// a redefinition carries a different body.
//
// # Thread Safety
//
// A Builder and a building Table belong to a single goroutine. After
// Freeze the table is immutable and safe for concurrent readers.
package symtab

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
)

// SymbolKind classifies a canonical symbol.
type SymbolKind int

const (
	// KindUnknown is the zero value; never stored in a table.
	KindUnknown SymbolKind = iota

	// KindFunction covers both defined and prototype-only functions.
	KindFunction

	// KindStruct is a named struct.
	KindStruct

	// KindTypedef is a typedef name.
	KindTypedef

	// KindGlobal is a file-scope variable.
	KindGlobal

	// KindExternal is a placeholder for a callee name never declared
	// in the corpus.
	KindExternal
)

// String returns the stable wire name for the kind.
func (k SymbolKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindStruct:
		return "struct"
	case KindTypedef:
		return "typedef"
	case KindGlobal:
		return "global"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// kindForEntity maps an extraction kind to the table's kind-class.
// Both definition and prototype facts land in KindFunction.
func kindForEntity(k ast.EntityKind) SymbolKind {
	switch k {
	case ast.EntityFunctionDef, ast.EntityFunctionProto:
		return KindFunction
	case ast.EntityStruct:
		return KindStruct
	case ast.EntityTypedef:
		return KindTypedef
	case ast.EntityGlobal:
		return KindGlobal
	default:
		return KindUnknown
	}
}

// Location is one place a name was declared or defined.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Symbol is the single authoritative record for a name after merge.
//
// Fields:
//   - ID: Stable identifier derived from the name. Identical across
//     runs and machines for the same corpus.
//   - Name: The declared name.
//   - Kind: Kind-class of the symbol.
//   - HasDefinition: True once a definition fact has been merged.
//     Always false for external placeholders.
//   - Ambiguous: True when two competing definitions were seen. The
//     first definition processed stays canonical.
//   - File, Line: The canonical location: the definition's when one
//     exists, otherwise the first recorded declaration.
//   - Locations: Every place the name appeared, in merge order.
//   - Snippet, Hash: Source text and short content hash of the
//     canonical occurrence, consumed by summarization and search.
type Symbol struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	HasDefinition bool       `json:"has_definition"`
	Ambiguous     bool       `json:"ambiguous,omitempty"`
	File          string     `json:"file"`
	Line          int        `json:"line"`
	Locations     []Location `json:"locations"`
	Snippet       string     `json:"-"`
	Hash          string     `json:"hash,omitempty"`
}

// IsExternal reports whether the symbol is a placeholder for a name
// outside the corpus.
func (s *Symbol) IsExternal() bool {
	return s.Kind == KindExternal
}

// ID derivation prefixes. Placeholders get their own prefix so a name
// later declared in the corpus can never collide with its external
// stand-in from an earlier snapshot.
const (
	symbolIDPrefix   = "sym:"
	externalIDPrefix = "ext:"
)

// SymbolID derives the stable id for a declared name.
//
// The id is content-addressed from the name alone: sixteen hex
// characters of SHA-256 under the "sym:" prefix. Deriving from the
// name keeps ids stable across runs regardless of which file happened
// to win the merge.
func SymbolID(name string) string {
	return symbolIDPrefix + shortHash(name)
}

// ExternalID derives the stable id for an external placeholder.
func ExternalID(name string) string {
	return externalIDPrefix + shortHash(name)
}

func shortHash(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:16]
}
