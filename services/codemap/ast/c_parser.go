// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// CParserOption configures a CParser instance.
type CParserOption func(*CParser)

// WithCMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Must be positive.
func WithCMaxFileSize(bytes int64) CParserOption {
	return func(p *CParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithCMaxCallsPerFunction caps the call facts collected per function body.
//
// Parameters:
//   - n: Maximum call facts per function. Must be positive.
func WithCMaxCallsPerFunction(n int) CParserOption {
	return func(p *CParser) {
		if n > 0 {
			p.maxCallsPerFunction = n
		}
	}
}

// CParser implements the Parser interface for C source files.
//
// Description:
//
//	CParser uses tree-sitter to parse C translation units and emit the
//	raw facts the symbol table and call graph builders consume:
//	function definitions, header prototypes, named structs, typedefs,
//	file-scope globals, and call expressions attributed to their
//	enclosing function.
//
//	Prototypes are recorded from header files only. A forward
//	declaration inside a .c file is a compilation aid, not a published
//	interface, and recording it would double-count the definition's
//	own file in the location set.
//
// Thread Safety:
//
//	CParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser instance.
//
// Example:
//
//	parser := NewCParser()
//	result, err := parser.Parse(ctx, []byte("int main(void) { return 0; }"), "main.c")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range result.Entities {
//	    fmt.Printf("%s %s\n", e.Kind, e.Name)
//	}
type CParser struct {
	maxFileSize         int64
	maxCallsPerFunction int
}

// NewCParser creates a CParser with the given options.
//
// Outputs:
//   - *CParser: Configured parser instance, never nil.
func NewCParser(opts ...CParserOption) *CParser {
	p := &CParser{
		maxFileSize:         DefaultMaxFileSize,
		maxCallsPerFunction: MaxCallsPerFunction,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts raw facts from C source code.
//
// Description:
//
//	Parse is error-tolerant: syntactically invalid code yields a
//	partial result with entries in result.Errors rather than a failed
//	call. Facts are emitted in source order; call facts for a function
//	follow that function's definition fact.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing;
//     tree-sitter itself cannot be interrupted mid-parse.
//   - content: Raw C source bytes. Must be valid UTF-8.
//   - filePath: Path for fact attribution, relative to the project
//     root with forward slashes.
//
// Outputs:
//   - *ParseResult: Extracted facts and metadata. Never nil on success.
//   - error: Non-nil only for complete failures: ErrFileTooLarge,
//     ErrInvalidContent, or context cancellation.
//
// Thread Safety: This method is safe for concurrent use.
func (p *CParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := startParseSpan(ctx, "c", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics("c", time.Since(start), nil, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics("c", time.Since(start), nil, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("Parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics("c", time.Since(start), nil, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	// New parser instance per call: sitter.Parser is not safe to share.
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics("c", time.Since(start), nil, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics("c", time.Since(start), nil, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath:      filePath,
		Language:      "c",
		Hash:          hashStr,
		ParsedAtMilli: time.Now().UnixMilli(),
		Entities:      make([]RawEntity, 0, 32),
		Errors:        make([]ParseError, 0),
	}

	rootNode := tree.RootNode()
	if rootNode == nil {
		result.Errors = append(result.Errors, ParseError{Message: "tree-sitter returned nil root node"})
		return result, nil
	}

	if rootNode.HasError() {
		result.Errors = append(result.Errors, ParseError{Message: "source contains syntax errors, facts may be partial"})
	}

	p.extractTopLevel(ctx, rootNode, content, filePath, result)

	if err := result.Validate(); err != nil {
		recordParseMetrics("c", time.Since(start), nil, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		recordParseMetrics("c", time.Since(start), result.Entities, false)
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, len(result.Entities), len(result.Errors))
	recordParseMetrics("c", time.Since(start), result.Entities, true)

	return result, nil
}

// Language returns the canonical language name for this parser.
func (p *CParser) Language() string {
	return "c"
}

// Extensions returns the file extensions this parser handles.
func (p *CParser) Extensions() []string {
	return []string{".c", ".h"}
}

// extractTopLevel walks file-scope items in source order.
//
// Conditional compilation blocks (preproc_if and friends) are entered
// so declarations behind #ifdef guards are still seen. Macro
// definitions themselves are skipped: macro expansion is out of scope.
func (p *CParser) extractTopLevel(ctx context.Context, node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(node.ChildCount()); i++ {
		if ctx.Err() != nil {
			return
		}
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "function_definition":
			p.processFunctionDefinition(ctx, child, content, filePath, result)
		case "declaration":
			p.processDeclaration(child, content, filePath, result)
		case "type_definition":
			p.processTypeDefinition(child, content, filePath, result)
		case "struct_specifier":
			// Bare "struct tag { ... };" at file scope.
			p.processStructSpecifier(child, content, filePath, result)
		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "linkage_specification", "declaration_list":
			p.extractTopLevel(ctx, child, content, filePath, result)
		}
	}
}

// processFunctionDefinition emits a function_def fact followed by the
// call facts found in its body.
func (p *CParser) processFunctionDefinition(ctx context.Context, node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	name := ""
	if fd := findFunctionDeclarator(node.ChildByFieldName("declarator")); fd != nil {
		name = declaratorName(fd, content)
	}

	snippet := nodeText(node, content)
	result.Entities = append(result.Entities, RawEntity{
		Kind:      EntityFunctionDef,
		Name:      name,
		FilePath:  filePath,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Snippet:   snippet,
		Hash:      SnippetHash(snippet),
	})

	// A definition whose declarator could not be parsed gets diagnosed
	// downstream; its calls cannot be attributed to anything.
	if name == "" {
		return
	}

	if body := node.ChildByFieldName("body"); body != nil {
		p.extractCalls(ctx, body, content, filePath, name, result)
	}
}

// processDeclaration handles one file-scope declaration: a header
// prototype, one or more globals, or an inline named struct type.
func (p *CParser) processDeclaration(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	// "struct tag { ... } var;" defines the tag and the variable.
	if typeNode := node.ChildByFieldName("type"); typeNode != nil && typeNode.Type() == "struct_specifier" {
		p.processStructSpecifier(typeNode, content, filePath, result)
	}

	if fd := findFunctionDeclarator(node); fd != nil {
		if !isHeaderFile(filePath) {
			return
		}
		snippet := nodeText(node, content)
		result.Entities = append(result.Entities, RawEntity{
			Kind:      EntityFunctionProto,
			Name:      declaratorName(fd, content),
			FilePath:  filePath,
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
			Snippet:   snippet,
			Hash:      SnippetHash(snippet),
		})
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || child == node.ChildByFieldName("type") {
			continue
		}
		switch child.Type() {
		case "init_declarator", "identifier", "pointer_declarator", "array_declarator":
			name := variableName(child, content)
			if name == "" && child.Type() != "identifier" {
				continue
			}
			snippet := nodeText(node, content)
			result.Entities = append(result.Entities, RawEntity{
				Kind:      EntityGlobal,
				Name:      name,
				FilePath:  filePath,
				StartLine: int(node.StartPoint().Row) + 1,
				EndLine:   int(node.EndPoint().Row) + 1,
				Snippet:   snippet,
				Hash:      SnippetHash(snippet),
			})
		}
	}
}

// processTypeDefinition emits typedef facts, plus a struct fact when
// the typedef defines a named struct inline.
func (p *CParser) processTypeDefinition(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	if typeNode := node.ChildByFieldName("type"); typeNode != nil && typeNode.Type() == "struct_specifier" {
		p.processStructSpecifier(typeNode, content, filePath, result)
	}

	snippet := nodeText(node, content)
	emitted := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || child == node.ChildByFieldName("type") {
			continue
		}
		name := typedefName(child, content)
		if name == "" {
			continue
		}
		emitted = true
		result.Entities = append(result.Entities, RawEntity{
			Kind:      EntityTypedef,
			Name:      name,
			FilePath:  filePath,
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
			Snippet:   snippet,
			Hash:      SnippetHash(snippet),
		})
	}

	// A typedef with no recoverable name still reaches the merge so it
	// can be diagnosed rather than vanish.
	if !emitted {
		result.Entities = append(result.Entities, RawEntity{
			Kind:      EntityTypedef,
			FilePath:  filePath,
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
			Snippet:   snippet,
			Hash:      SnippetHash(snippet),
		})
	}
}

// processStructSpecifier emits a struct fact for a named struct with a
// body, then scans the body for nested named structs.
func (p *CParser) processStructSpecifier(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if body == nil {
		// A reference like "struct tag x;" defines nothing.
		return
	}

	if nameNode != nil {
		snippet := nodeText(node, content)
		result.Entities = append(result.Entities, RawEntity{
			Kind:      EntityStruct,
			Name:      nodeText(nameNode, content),
			FilePath:  filePath,
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
			Snippet:   snippet,
			Hash:      SnippetHash(snippet),
		})
	}

	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if child == nil || child.Type() != "field_declaration" {
			continue
		}
		if inner := child.ChildByFieldName("type"); inner != nil && inner.Type() == "struct_specifier" {
			p.processStructSpecifier(inner, content, filePath, result)
		}
	}
}

// extractCalls collects call facts from a function body.
//
// Description:
//
//	Iterative stack traversal with a depth bound and a per-function
//	cap. Only direct identifier calls are recorded; calls through
//	function pointers or struct members cannot be resolved by name and
//	are out of scope.
//
// Thread Safety: This method is safe for concurrent use.
func (p *CParser) extractCalls(ctx context.Context, body *sitter.Node, content []byte, filePath, caller string, result *ParseResult) {
	type stackEntry struct {
		node  *sitter.Node
		depth int
	}

	stack := make([]stackEntry, 0, 64)
	stack = append(stack, stackEntry{node: body, depth: 0})

	collected := 0
	nodeCount := 0
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := entry.node
		if node == nil {
			continue
		}

		if entry.depth > MaxCallDepth {
			slog.Debug("Max call expression depth reached",
				slog.String("file", filePath),
				slog.String("function", caller),
				slog.Int("depth", entry.depth))
			continue
		}

		nodeCount++
		if nodeCount%100 == 0 && ctx.Err() != nil {
			return
		}

		if collected >= p.maxCallsPerFunction {
			slog.Warn("Max call facts per function reached",
				slog.String("file", filePath),
				slog.String("function", caller),
				slog.Int("limit", p.maxCallsPerFunction))
			return
		}

		if node.Type() == "call_expression" {
			if funcNode := node.ChildByFieldName("function"); funcNode != nil && funcNode.Type() == "identifier" {
				result.Entities = append(result.Entities, RawEntity{
					Kind:      EntityCall,
					Name:      nodeText(funcNode, content),
					FilePath:  filePath,
					StartLine: int(node.StartPoint().Row) + 1,
					EndLine:   int(node.EndPoint().Row) + 1,
					Caller:    caller,
				})
				collected++
			}
		}

		childCount := int(node.ChildCount())
		for i := childCount - 1; i >= 0; i-- {
			if child := node.Child(i); child != nil {
				stack = append(stack, stackEntry{node: child, depth: entry.depth + 1})
			}
		}
	}
}

// findFunctionDeclarator locates the function_declarator in a
// declarator subtree, if any.
func findFunctionDeclarator(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == "function_declarator" {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		// Bodies and parameter lists cannot contain this
		// declaration's own declarator.
		if child.Type() == "compound_statement" || child.Type() == "parameter_list" {
			continue
		}
		if found := findFunctionDeclarator(child); found != nil {
			return found
		}
	}
	return nil
}

// declaratorName descends a declarator chain to the declared
// identifier. Handles pointer returns ("int *f()"), parenthesized
// declarators, and functions returning function pointers.
func declaratorName(decl *sitter.Node, content []byte) string {
	for decl != nil {
		switch decl.Type() {
		case "identifier", "field_identifier":
			return nodeText(decl, content)
		case "function_declarator", "pointer_declarator", "parenthesized_declarator", "array_declarator":
			inner := decl.ChildByFieldName("declarator")
			if inner == nil {
				// parenthesized_declarator has no field; take the
				// first named child.
				inner = firstNamedChild(decl)
			}
			decl = inner
		default:
			return ""
		}
	}
	return ""
}

// variableName resolves the identifier of a variable declarator,
// descending through init, pointer, and array wrappers.
func variableName(node *sitter.Node, content []byte) string {
	for node != nil {
		switch node.Type() {
		case "identifier":
			return nodeText(node, content)
		case "init_declarator", "pointer_declarator", "array_declarator", "parenthesized_declarator":
			inner := node.ChildByFieldName("declarator")
			if inner == nil {
				inner = firstNamedChild(node)
			}
			node = inner
		default:
			return ""
		}
	}
	return ""
}

// typedefName finds the type_identifier declared by a typedef
// declarator, descending through pointer and function wrappers for
// forms like "typedef int (*handler_t)(int)".
func typedefName(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	if node.Type() == "type_identifier" {
		return nodeText(node, content)
	}
	switch node.Type() {
	case "pointer_declarator", "function_declarator", "parenthesized_declarator", "array_declarator":
		for i := 0; i < int(node.ChildCount()); i++ {
			if name := typedefName(node.Child(i), content); name != "" {
				return name
			}
		}
	}
	return ""
}

// firstNamedChild returns the first named child of a node, or nil.
func firstNamedChild(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.IsNamed() {
			return child
		}
	}
	return nil
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(content) || start > end {
		return ""
	}
	return string(content[start:end])
}

// isHeaderFile reports whether the path names a C header.
func isHeaderFile(path string) bool {
	return strings.HasSuffix(path, ".h")
}
