// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/go-diff/diff"
)

// Refresh rebuilds the map after a unified diff, reparsing only the
// files the diff names.
//
// Description:
//
//	Files untouched by the diff replay their parse results from the
//	previous build; changed files are re-read and re-parsed; files the
//	diff deletes are dropped. The merge itself is always a full,
//	ordered phase-2 pass over the combined results: incremental
//	extraction is safe, incremental merging is not, because promotion
//	and collision outcomes depend on global order.
//
// Inputs:
//   - ctx: Cancels per-file extraction.
//   - unifiedDiff: A git-style unified diff. Paths may carry the
//     conventional a/ and b/ prefixes.
//
// Outputs:
//   - *Result: A fresh frozen build.
//   - error: Malformed diff, or no previous build to refresh against
//     (call Build first).
func (p *Pipeline) Refresh(ctx context.Context, unifiedDiff []byte) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.lastParsed) == 0 {
		return nil, fmt.Errorf("refresh without a prior build")
	}

	changed, deleted, err := changedPaths(unifiedDiff)
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	start := time.Now()

	// Start from the previous build's file set, apply the diff to it.
	paths := make(map[string]struct{}, len(p.lastParsed))
	for path := range p.lastParsed {
		paths[path] = struct{}{}
	}
	for path := range deleted {
		delete(paths, path)
	}
	for path := range changed {
		if isCFile(path) {
			paths[path] = struct{}{}
		}
	}

	ordered := make([]string, 0, len(paths))
	for path := range paths {
		ordered = append(ordered, path)
	}
	sort.Strings(ordered)

	outcomes := make([]parseOutcome, 0, len(ordered))
	reparsed := 0
	for _, path := range ordered {
		f := SourceFile{
			Path:    path,
			AbsPath: filepath.Join(p.opts.Root, filepath.FromSlash(path)),
			Class:   classifyFile(path),
		}
		if _, isChanged := changed[path]; !isChanged {
			outcomes = append(outcomes, parseOutcome{
				file: f, result: p.lastParsed[path], cacheHit: true,
			})
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, p.parseOne(ctx, f))
		reparsed++
	}

	result := p.mergePhase(outcomes)
	result.Stats.RunID = uuid.NewString()
	result.Stats.FilesWalked = len(ordered)
	result.Stats.DurationMilli = time.Since(start).Milliseconds()
	for _, o := range outcomes {
		result.Files = append(result.Files, o.file)
	}

	p.rememberParses(outcomes)

	slog.Info("Incremental refresh complete",
		slog.String("run_id", result.Stats.RunID),
		slog.Int("files", len(ordered)),
		slog.Int("reparsed", reparsed),
		slog.Int("deleted", len(deleted)))

	return result, nil
}

// changedPaths extracts the changed and deleted file sets from a
// unified diff.
func changedPaths(unifiedDiff []byte) (changed, deleted map[string]struct{}, err error) {
	fileDiffs, err := diff.ParseMultiFileDiff(unifiedDiff)
	if err != nil {
		return nil, nil, err
	}

	changed = make(map[string]struct{})
	deleted = make(map[string]struct{})
	for _, fd := range fileDiffs {
		newName := stripDiffPrefix(fd.NewName)
		origName := stripDiffPrefix(fd.OrigName)
		if newName == "" || fd.NewName == "/dev/null" {
			if origName != "" {
				deleted[origName] = struct{}{}
			}
			continue
		}
		changed[newName] = struct{}{}
		// A rename deletes the old path.
		if origName != "" && origName != newName && fd.OrigName != "/dev/null" {
			deleted[origName] = struct{}{}
		}
	}
	return changed, deleted, nil
}

// stripDiffPrefix removes git's a/ and b/ path prefixes.
func stripDiffPrefix(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

func isCFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".c" || ext == ".h"
}
