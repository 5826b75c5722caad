// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline orchestrates a full code map build: source
// discovery, parallel per-file fact extraction, and the ordered merge
// into the symbol table and call graph.
//
// # Two phases
//
// Phase 1 (extraction) is embarrassingly parallel: files are parsed by
// a bounded worker pool with no shared mutable state, and results land
// in a buffer indexed by file. Phase 2 (merge) is a single-writer
// pass that replays the buffered results in lexicographic path order,
// declaration facts first, then call facts. Identical input always
// yields an identical table, graph, and diagnostics list, whatever
// order the workers finished in.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/callgraph"
	"github.com/LunarLaurus/codebuddy/services/codemap/diag"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

// Default pipeline configuration values.
const (
	// DefaultCacheSize is the number of parse results kept in the LRU
	// cache, keyed by file content hash.
	DefaultCacheSize = 4096
)

// Options configures a Pipeline.
type Options struct {
	// Root is the project root directory.
	Root string

	// Workers bounds phase-1 parallelism. 0 means runtime.NumCPU().
	Workers int

	// CacheSize is the parse cache capacity. 0 means DefaultCacheSize.
	CacheSize int

	// ExcludePrefixes are root-relative path prefixes to skip.
	ExcludePrefixes []string

	// IncludeTests includes test files in the build.
	IncludeTests bool

	// IncludeVendor includes vendored code in the build.
	IncludeVendor bool
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Options)

// WithRoot sets the project root directory.
func WithRoot(root string) Option {
	return func(o *Options) { o.Root = root }
}

// WithWorkers bounds phase-1 parallelism.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithCacheSize sets the parse cache capacity.
func WithCacheSize(n int) Option {
	return func(o *Options) { o.CacheSize = n }
}

// WithExcludePrefixes sets root-relative path prefixes to skip.
func WithExcludePrefixes(prefixes ...string) Option {
	return func(o *Options) { o.ExcludePrefixes = append(o.ExcludePrefixes, prefixes...) }
}

// WithIncludeTests includes test files in the build.
func WithIncludeTests(v bool) Option {
	return func(o *Options) { o.IncludeTests = v }
}

// WithIncludeVendor includes vendored code in the build.
func WithIncludeVendor(v bool) Option {
	return func(o *Options) { o.IncludeVendor = v }
}

// BuildStats summarizes one completed build.
type BuildStats struct {
	RunID         string `json:"run_id"`
	FilesWalked   int    `json:"files_walked"`
	FilesParsed   int    `json:"files_parsed"`
	FilesFailed   int    `json:"files_failed"`
	CacheHits     int    `json:"cache_hits"`
	Symbols       int    `json:"symbols"`
	Edges         int    `json:"edges"`
	Diagnostics   int    `json:"diagnostics"`
	DurationMilli int64  `json:"duration_milli"`
}

// Result is one completed, frozen build.
//
// Table and Graph are immutable; Projector answers queries over them.
// Diagnostics lists every dropped or altered fact in build order.
type Result struct {
	Table       *symtab.Table
	Graph       *callgraph.Graph
	Projector   *views.Projector
	Diagnostics *diag.List
	Files       []SourceFile
	Stats       BuildStats
}

// Pipeline builds code maps for one project root.
//
// Thread Safety: Build and Refresh are serialized by an internal
// mutex; a Pipeline can be shared by the watch loop and the service.
type Pipeline struct {
	opts   Options
	parser ast.Parser

	// cache holds parse results keyed by file content hash, so an
	// unchanged file is never reparsed across builds.
	cache *lru.Cache[string, *ast.ParseResult]

	mu sync.Mutex

	// lastParsed maps relative path to the parse result of the most
	// recent build. Refresh replays these for files a diff left alone.
	lastParsed map[string]*ast.ParseResult
}

// New creates a Pipeline for the given parser and root.
func New(parser ast.Parser, opts ...Option) (*Pipeline, error) {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}
	if options.CacheSize <= 0 {
		options.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, *ast.ParseResult](options.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create parse cache: %w", err)
	}

	return &Pipeline{
		opts:       options,
		parser:     parser,
		cache:      cache,
		lastParsed: make(map[string]*ast.ParseResult),
	}, nil
}

// parseOutcome is one file's phase-1 result.
type parseOutcome struct {
	file     SourceFile
	result   *ast.ParseResult // nil when the file failed entirely
	failure  string           // failure detail when result is nil
	cacheHit bool
}

// Build runs a full two-phase build.
//
// Description:
//
//	Discovers sources, extracts facts in parallel, then merges them in
//	deterministic order. Per-file failures become diagnostics; the
//	only fatal condition is an absent or unreadable project root.
//
// Inputs:
//   - ctx: Cancels extraction at file granularity. The merge itself
//     does not block on I/O.
//
// Outputs:
//   - *Result: Frozen table, graph, projector, and diagnostics.
//   - error: Non-nil only when the root cannot be read at all or the
//     context was cancelled.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := startBuildSpan(ctx, p.opts.Root)
	defer span.End()
	start := time.Now()

	walker, err := NewWalker(WalkerOptions{
		Root:            p.opts.Root,
		ExcludePrefixes: p.opts.ExcludePrefixes,
		IncludeTests:    p.opts.IncludeTests,
		IncludeVendor:   p.opts.IncludeVendor,
	})
	if err != nil {
		recordBuildMetrics(time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("build failed: %w", err)
	}
	files, err := walker.Walk()
	if err != nil {
		recordBuildMetrics(time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("build failed: %w", err)
	}

	outcomes, err := p.extractPhase(ctx, files)
	if err != nil {
		recordBuildMetrics(time.Since(start), 0, 0, false)
		return nil, err
	}

	result := p.mergePhase(outcomes)
	result.Files = files
	result.Stats.RunID = uuid.NewString()
	result.Stats.FilesWalked = len(files)
	result.Stats.DurationMilli = time.Since(start).Milliseconds()

	p.rememberParses(outcomes)

	setBuildSpanResult(span, result.Stats)
	recordBuildMetrics(time.Since(start), result.Stats.Symbols, result.Stats.Edges, true)
	slog.Info("Code map build complete",
		slog.String("run_id", result.Stats.RunID),
		slog.Int("files", result.Stats.FilesWalked),
		slog.Int("symbols", result.Stats.Symbols),
		slog.Int("edges", result.Stats.Edges),
		slog.Int("diagnostics", result.Stats.Diagnostics),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

// extractPhase parses every file with a bounded worker pool.
//
// Outcomes are indexed by the walker's path order, so merge order
// never depends on worker completion order. Workers share nothing but
// the (thread-safe) parse cache; diagnostics are deferred to the
// single-writer merge so their order stays deterministic.
func (p *Pipeline) extractPhase(ctx context.Context, files []SourceFile) ([]parseOutcome, error) {
	outcomes := make([]parseOutcome, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.parseOne(ctx, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}
	return outcomes, nil
}

// parseOne reads and parses a single file, consulting the cache.
func (p *Pipeline) parseOne(ctx context.Context, f SourceFile) parseOutcome {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return parseOutcome{file: f, failure: fmt.Sprintf("read failed: %v", err)}
	}

	key := ast.SnippetHash(string(content))
	if cached, ok := p.cache.Get(key); ok && cached.FilePath == f.Path {
		return parseOutcome{file: f, result: cached, cacheHit: true}
	}

	result, err := p.parser.Parse(ctx, content, f.Path)
	if err != nil {
		return parseOutcome{file: f, failure: err.Error()}
	}
	p.cache.Add(key, result)
	return parseOutcome{file: f, result: result}
}

// mergePhase replays buffered extraction results in path order:
// declaration facts across all files first, then call facts, then
// freeze. Single writer; no locking needed.
func (p *Pipeline) mergePhase(outcomes []parseOutcome) *Result {
	diags := &diag.List{}
	stats := BuildStats{}

	sb := symtab.NewBuilder(diags)
	for _, o := range outcomes {
		if o.result == nil {
			diags.Append(diag.ParseFailure(o.file.Path, o.failure))
			stats.FilesFailed++
			continue
		}
		stats.FilesParsed++
		if o.cacheHit {
			stats.CacheHits++
		}
		for _, pe := range o.result.Errors {
			diags.Append(diag.ParseFailure(o.file.Path,
				fmt.Sprintf("partial parse: %s", pe.Message)))
		}
		for _, e := range o.result.Entities {
			if e.Kind == ast.EntityCall {
				continue
			}
			if err := sb.Apply(e); err != nil {
				// Apply only fails on misuse; surface loudly in dev.
				slog.Error("Symbol merge rejected entity",
					slog.String("file", o.file.Path),
					slog.String("name", e.Name),
					slog.String("error", err.Error()))
			}
		}
	}

	cb := callgraph.NewBuilder(sb.Table(), diags)
	for _, o := range outcomes {
		if o.result == nil {
			continue
		}
		for _, e := range o.result.Entities {
			if e.Kind != ast.EntityCall {
				continue
			}
			if err := cb.AddCall(e); err != nil {
				slog.Error("Call merge rejected entity",
					slog.String("file", o.file.Path),
					slog.String("callee", e.Name),
					slog.String("error", err.Error()))
			}
		}
	}

	table := sb.Table()
	graph := cb.Graph()
	table.Freeze()
	graph.Freeze()

	stats.Symbols = table.Len()
	stats.Edges = graph.Len()
	stats.Diagnostics = diags.Len()

	return &Result{
		Table:       table,
		Graph:       graph,
		Projector:   views.NewProjector(table, graph),
		Diagnostics: diags,
		Stats:       stats,
	}
}

// rememberParses records per-path results for diff-driven refresh.
func (p *Pipeline) rememberParses(outcomes []parseOutcome) {
	parsed := make(map[string]*ast.ParseResult, len(outcomes))
	for _, o := range outcomes {
		if o.result != nil {
			parsed[o.file.Path] = o.result
		}
	}
	p.lastParsed = parsed
}
