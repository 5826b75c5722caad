// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ast extracts raw facts from C source files.
//
// The extraction adapter turns one file into an ordered list of
// RawEntity values: function definitions, prototypes, structs,
// typedefs, globals, and call expressions attributed to their
// enclosing function. It performs no cross-file work; reconciling
// facts into canonical symbols is the symtab and callgraph packages'
// job.
//
// # Ordering
//
// Entities are emitted in source order. Downstream merge semantics
// (prototype promotion, first-wins collisions) depend on that order,
// so extractors must never reorder facts within a file.
//
// # Thread Safety
//
// Parser implementations are safe for concurrent use; each Parse call
// creates its own tree-sitter parser instance.
package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size limits for a single source file.
const (
	// DefaultMaxFileSize is the largest file Parse accepts (10MB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize triggers a log warning for unusually large files (1MB).
	WarnFileSize = 1 * 1024 * 1024

	// MaxCallDepth bounds the iterative traversal of expression trees
	// when collecting call sites. Deeper nests are skipped.
	MaxCallDepth = 256

	// MaxCallsPerFunction caps the call facts collected from a single
	// function body. Generated code can exceed any sane limit; the cap
	// keeps one file from dominating the build.
	MaxCallsPerFunction = 2000
)

// Sentinel errors returned by Parse.
var (
	// ErrFileTooLarge is returned when content exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent is returned when content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid file content")
)

// EntityKind classifies one extracted fact.
type EntityKind int

const (
	// EntityUnknown is the zero value; never emitted by extractors.
	EntityUnknown EntityKind = iota

	// EntityFunctionDef is a function definition (declarator + body).
	EntityFunctionDef

	// EntityFunctionProto is a function prototype from a header file.
	EntityFunctionProto

	// EntityStruct is a named struct definition.
	EntityStruct

	// EntityTypedef is a typedef declaration.
	EntityTypedef

	// EntityGlobal is a file-scope variable declaration.
	EntityGlobal

	// EntityCall is a call expression inside a function body.
	EntityCall
)

// String returns the stable wire name for the kind.
func (k EntityKind) String() string {
	switch k {
	case EntityFunctionDef:
		return "function_def"
	case EntityFunctionProto:
		return "function_proto"
	case EntityStruct:
		return "struct"
	case EntityTypedef:
		return "typedef"
	case EntityGlobal:
		return "global"
	case EntityCall:
		return "call"
	default:
		return "unknown"
	}
}

// IsFunction reports whether the kind names a function declaration or
// definition. Calls are not function facts.
func (k EntityKind) IsFunction() bool {
	return k == EntityFunctionDef || k == EntityFunctionProto
}

// RawEntity is one extracted fact, before any cross-file merge.
//
// Fields:
//   - Kind: What the fact is.
//   - Name: The declared name, or the callee name for call facts.
//     May be empty when the declarator could not be parsed; such
//     facts are diagnosed and skipped downstream, never dropped here.
//   - FilePath: Path the fact came from, relative to the project root
//     with forward slashes.
//   - StartLine, EndLine: 1-based inclusive line range.
//   - Snippet: Source text of the entity. Populated for declaration
//     kinds (used by summarization); empty for call facts.
//   - Hash: Short content hash of the snippet, used to skip
//     re-summarizing and re-embedding unchanged entities.
//   - Caller: For call facts only, the name of the enclosing function
//     definition.
type RawEntity struct {
	Kind      EntityKind
	Name      string
	FilePath  string
	StartLine int
	EndLine   int
	Snippet   string
	Hash      string
	Caller    string
}

// ParseError is one non-fatal problem encountered while extracting a
// file. The file's remaining facts are still emitted.
type ParseError struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ParseResult is the extraction output for one file.
//
// A result with entries in Errors is a partial result: tree-sitter is
// error-tolerant and extraction continues past syntax errors.
type ParseResult struct {
	FilePath      string
	Language      string
	Hash          string
	ParsedAtMilli int64
	Entities      []RawEntity
	Errors        []ParseError
}

// Validate checks structural invariants of the result.
//
// Outputs:
//   - error: Non-nil if the result is self-inconsistent (wrong file
//     path on an entity, call fact without a caller, inverted line
//     range). A nil error does not imply the source was valid C.
func (r *ParseResult) Validate() error {
	if r.FilePath == "" {
		return fmt.Errorf("parse result missing file path")
	}
	for i, e := range r.Entities {
		if e.FilePath != r.FilePath {
			return fmt.Errorf("entity %d file path %q does not match result %q", i, e.FilePath, r.FilePath)
		}
		if e.Kind == EntityUnknown {
			return fmt.Errorf("entity %d has unknown kind", i)
		}
		if e.Kind == EntityCall && e.Caller == "" {
			return fmt.Errorf("entity %d is a call fact without a caller", i)
		}
		if e.StartLine > 0 && e.EndLine > 0 && e.EndLine < e.StartLine {
			return fmt.Errorf("entity %d has inverted line range %d..%d", i, e.StartLine, e.EndLine)
		}
	}
	return nil
}

// Parser extracts raw facts from one language's source files.
//
// Implementations must be safe for concurrent use: the build pipeline
// calls Parse from a pool of workers.
type Parser interface {
	// Parse extracts facts from content. Returns a partial result with
	// Errors entries for recoverable problems; returns a non-nil error
	// only for complete failures (size, encoding, cancellation).
	Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error)

	// Language returns the canonical language name, e.g. "c".
	Language() string

	// Extensions returns the file extensions this parser handles.
	Extensions() []string
}

// SnippetHash returns the short content hash recorded on extracted
// entities. Sixteen hex characters of SHA-256 is collision-safe at
// codebase scale and keeps snapshot payloads small.
func SnippetHash(snippet string) string {
	sum := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(sum[:])[:16]
}
