// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// FileClass categorizes a discovered source file for reporting and
// optional exclusion.
type FileClass string

const (
	// ClassSource is a regular .c implementation file.
	ClassSource FileClass = "source"

	// ClassHeader is a .h header file.
	ClassHeader FileClass = "header"

	// ClassTest is a file under a test directory or with a test name.
	ClassTest FileClass = "test"

	// ClassVendor is third-party code vendored into the tree.
	ClassVendor FileClass = "vendor"

	// ClassGenerated is machine-produced code.
	ClassGenerated FileClass = "generated"
)

// SourceFile is one file discovered by the walker.
type SourceFile struct {
	// Path is relative to the project root, forward slashes. All fact
	// attribution uses this form.
	Path string

	// AbsPath is the absolute path for reading the file.
	AbsPath string

	// Class is the classification of the file.
	Class FileClass

	// Size is the file size in bytes at walk time.
	Size int64
}

// WalkerOptions configures source discovery.
type WalkerOptions struct {
	// Root is the project root directory. Must exist and be readable.
	Root string

	// ExcludePrefixes are root-relative path prefixes to skip entirely.
	ExcludePrefixes []string

	// IncludeTests includes files classified as tests. Default false.
	IncludeTests bool

	// IncludeVendor includes vendored third-party code. Default false.
	IncludeVendor bool
}

// Walker discovers the C files of a project in deterministic order.
//
// The walker honors the project's .gitignore, skips dot-directories,
// and classifies every file it keeps. Results are sorted by relative
// path: the merge phase depends on that order.
type Walker struct {
	opts    WalkerOptions
	matcher *ignore.GitIgnore
}

// NewWalker creates a walker rooted at opts.Root.
//
// Outputs:
//   - *Walker: Ready to walk. A missing or malformed .gitignore is
//     logged and ignored; discovery proceeds without it.
//   - error: Non-nil when the root does not exist or is not a
//     directory. This is the build's only fatal input condition.
func NewWalker(opts WalkerOptions) (*Walker, error) {
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("project root %q unreadable: %w", opts.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %q is not a directory", opts.Root)
	}

	w := &Walker{opts: opts}

	gitignorePath := filepath.Join(opts.Root, ".gitignore")
	if matcher, err := ignore.CompileIgnoreFile(gitignorePath); err == nil {
		w.matcher = matcher
	} else if !os.IsNotExist(err) {
		slog.Warn("Could not compile .gitignore, proceeding without it",
			slog.String("path", gitignorePath),
			slog.String("error", err.Error()))
	}

	return w, nil
}

// Walk discovers every C file under the root, sorted by relative path.
//
// Unreadable subdirectories are skipped with a warning rather than
// failing the walk: partial input is tolerated everywhere downstream.
func (w *Walker) Walk() ([]SourceFile, error) {
	var files []SourceFile

	err := filepath.WalkDir(w.opts.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			slog.Warn("Skipping unreadable path",
				slog.String("path", path),
				slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if w.skipDir(rel, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(rel))
		if ext != ".c" && ext != ".h" {
			return nil
		}
		if w.matcher != nil && w.matcher.MatchesPath(rel) {
			return nil
		}

		class := classifyFile(rel)
		if class == ClassTest && !w.opts.IncludeTests {
			return nil
		}
		if class == ClassVendor && !w.opts.IncludeVendor {
			return nil
		}

		info, err := d.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}

		files = append(files, SourceFile{
			Path:    rel,
			AbsPath: path,
			Class:   class,
			Size:    size,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", w.opts.Root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// skipDir reports whether a directory should be pruned from the walk.
func (w *Walker) skipDir(rel, name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if w.matcher != nil && w.matcher.MatchesPath(rel+"/") {
		return true
	}
	for _, prefix := range w.opts.ExcludePrefixes {
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return true
		}
	}
	return false
}

// classifyFile buckets a relative path by its role in the tree.
//
// Order matters: vendor beats test beats generated, so vendored test
// code stays classified as vendor.
func classifyFile(rel string) FileClass {
	lower := strings.ToLower(rel)
	segments := strings.Split(lower, "/")
	base := segments[len(segments)-1]

	for _, seg := range segments[:len(segments)-1] {
		switch seg {
		case "vendor", "third_party", "thirdparty", "external", "deps":
			return ClassVendor
		case "test", "tests", "testing", "t":
			return ClassTest
		}
	}

	if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.c") {
		return ClassTest
	}
	if strings.Contains(base, ".gen.") || strings.HasSuffix(base, "_generated.c") ||
		strings.HasSuffix(base, "_generated.h") || strings.HasSuffix(base, ".tab.c") ||
		strings.HasSuffix(base, ".tab.h") || strings.HasSuffix(base, ".yy.c") {
		return ClassGenerated
	}
	if strings.HasSuffix(base, ".h") {
		return ClassHeader
	}
	return ClassSource
}
