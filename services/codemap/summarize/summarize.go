// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package summarize generates natural-language summaries for the
// functions and files of a built code map.
//
// Function prompts carry the source snippet plus the caller/callee
// names from the graph, so the model sees each function in context. A
// refine pass then folds a file's function summaries into one file
// summary. Summaries are content-addressed: a function whose snippet
// hash is unchanged from the previous report keeps its old text and
// costs no model call.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
	"github.com/LunarLaurus/codebuddy/services/codemap/views"
	"github.com/LunarLaurus/codebuddy/services/llm"
)

var tracer = otel.Tracer("codebuddy.summarize")

// FunctionSummary is one function's generated summary.
type FunctionSummary struct {
	SymbolID string `json:"symbol_id"`
	Name     string `json:"name"`
	File     string `json:"file"`

	// Hash is the snippet hash the summary was generated from. A
	// matching hash on a later build means the text is still valid.
	Hash string `json:"hash"`

	Text string `json:"text"`

	// Reused is true when the text was carried over from a previous
	// report instead of regenerated.
	Reused bool `json:"reused,omitempty"`
}

// FileSummary is the refined summary of one source file.
type FileSummary struct {
	Path      string   `json:"path"`
	Text      string   `json:"text"`
	Functions []string `json:"functions"`
}

// Report is the serialized summarization artifact for one build.
type Report struct {
	MapHash          string            `json:"map_hash"`
	GeneratedAtMilli int64             `json:"generated_at_milli"`
	Model            string            `json:"model"`
	Functions        []FunctionSummary `json:"functions"`
	Files            []FileSummary     `json:"files"`
}

// Encode renders the report as JSON.
func (r *Report) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeReport parses a serialized report.
func DecodeReport(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode summary report: %w", err)
	}
	return &r, nil
}

// functionByID indexes a previous report for reuse lookups.
func (r *Report) functionByID() map[string]FunctionSummary {
	if r == nil {
		return nil
	}
	out := make(map[string]FunctionSummary, len(r.Functions))
	for _, f := range r.Functions {
		out[f.SymbolID] = f
	}
	return out
}

// Summarizer drives summary generation over a projection.
type Summarizer struct {
	client llm.Client
	logger *slog.Logger
}

// NewSummarizer creates a summarizer over a guarded client.
func NewSummarizer(client llm.Client, logger *slog.Logger) (*Summarizer, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{client: client, logger: logger}, nil
}

// Run summarizes every defined function and then every file.
//
// Description:
//
//	Functions are visited in name order for reproducible output and
//	prompt ordering. A function present in prev with an identical
//	snippet hash is carried over without a model call. Files are
//	refined from their functions' summaries, also in path order. A
//	single model failure aborts the run; nothing partial is returned.
//
// Inputs:
//   - ctx: Cancels between model calls.
//   - projector: A frozen build's projection layer.
//   - mapHash: Hash of the build, recorded in the report.
//   - prev: Previous report for reuse, may be nil.
func (s *Summarizer) Run(ctx context.Context, projector *views.Projector, mapHash string, prev *Report) (*Report, error) {
	if projector == nil {
		return nil, fmt.Errorf("projector must not be nil")
	}
	ctx, span := tracer.Start(ctx, "summarize.Run")
	defer span.End()

	report := &Report{
		MapHash:          mapHash,
		GeneratedAtMilli: time.Now().UnixMilli(),
		Model:            s.client.Model(),
	}
	prevByID := prev.functionByID()

	reused := 0
	for _, sym := range projector.Table().SymbolsByKind(symtab.KindFunction) {
		if !sym.HasDefinition {
			continue
		}
		if old, ok := prevByID[sym.ID]; ok && old.Hash == sym.Hash && sym.Hash != "" {
			old.Reused = true
			report.Functions = append(report.Functions, old)
			reused++
			continue
		}

		text, err := s.summarizeFunction(ctx, projector, sym)
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", sym.Name, err)
		}
		report.Functions = append(report.Functions, FunctionSummary{
			SymbolID: sym.ID,
			Name:     sym.Name,
			File:     sym.File,
			Hash:     sym.Hash,
			Text:     text,
		})
	}

	if err := s.refineFiles(ctx, report); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("functions", len(report.Functions)),
		attribute.Int("reused", reused),
		attribute.Int("files", len(report.Files)),
	)
	s.logger.Info("Summarization complete",
		slog.Int("functions", len(report.Functions)),
		slog.Int("reused", reused),
		slog.Int("files", len(report.Files)))
	return report, nil
}

// summarizeFunction generates one function summary with graph context.
func (s *Summarizer) summarizeFunction(ctx context.Context, projector *views.Projector, sym *symtab.Symbol) (string, error) {
	view, err := projector.FunctionView(sym.Name)
	if err != nil {
		return "", err
	}
	prompt := functionPrompt(sym, view.Callers, view.Callees)
	return s.client.Generate(ctx, prompt)
}

// refineFiles folds function summaries into per-file summaries.
func (s *Summarizer) refineFiles(ctx context.Context, report *Report) error {
	byFile := make(map[string][]FunctionSummary)
	for _, f := range report.Functions {
		byFile[f.File] = append(byFile[f.File], f)
	}
	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		funcs := byFile[path]
		text, err := s.client.Generate(ctx, filePrompt(path, funcs))
		if err != nil {
			return fmt.Errorf("refine %s: %w", path, err)
		}
		names := make([]string, len(funcs))
		for i, f := range funcs {
			names[i] = f.Name
		}
		report.Files = append(report.Files, FileSummary{
			Path:      path,
			Text:      text,
			Functions: names,
		})
	}
	return nil
}

// snippetCap bounds how much source goes into one prompt; the send
// guard enforces the hard byte cap on the whole prompt afterwards.
const snippetCap = 8 * 1024

func functionPrompt(sym *symtab.Symbol, callers, callees []string) string {
	var b strings.Builder
	b.WriteString("Summarize this C function in two sentences: what it does and why callers use it.\n\n")
	fmt.Fprintf(&b, "Function: %s (defined in %s:%d)\n", sym.Name, sym.File, sym.Line)
	if len(callers) > 0 {
		fmt.Fprintf(&b, "Called by: %s\n", strings.Join(callers, ", "))
	}
	if len(callees) > 0 {
		fmt.Fprintf(&b, "Calls: %s\n", strings.Join(callees, ", "))
	}
	snippet := sym.Snippet
	if len(snippet) > snippetCap {
		snippet = snippet[:snippetCap]
	}
	b.WriteString("\nSource:\n```c\n")
	b.WriteString(snippet)
	b.WriteString("\n```\n")
	return b.String()
}

func filePrompt(path string, funcs []FunctionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the role of the C file %s in three sentences, based on its functions:\n\n", path)
	for _, f := range funcs {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Text)
	}
	return b.String()
}
