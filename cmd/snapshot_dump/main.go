// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// snapshot_dump inspects a code map snapshot store.
//
// The snapshot store persists gzip-compressed code map payloads in
// BadgerDB between runs. This tool opens the store read-only and prints
// a human-readable summary: snapshot ids, labels, project roots,
// payload sizes, and symbol/edge/diagnostic counts.
//
// Usage:
//
//	snapshot_dump [--path /path/to/.codebuddy/snapshots]
//
// If --path is not given, reads CODEBUDDY_SNAPSHOT_DIR from the
// environment, falling back to ./.codebuddy/snapshots.
//
// Exit codes:
//
//	0 — success (including "empty store", which prints a message)
//	1 — error opening or reading the database
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/LunarLaurus/codebuddy/services/codemap/store"
)

// Key layout must match store/snapshot.go exactly.
const (
	snapKeyPrefix = "map:snap:"
	metaSuffix    = ":meta"
)

func main() {
	pathFlag := flag.String("path", "", "Path to the snapshot BadgerDB directory (overrides CODEBUDDY_SNAPSHOT_DIR)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("CODEBUDDY_SNAPSHOT_DIR")
	}
	if dbPath == "" {
		dbPath = filepath.Join(".codebuddy", "snapshots")
	}

	fmt.Printf("Snapshot store path: %s\n", dbPath)

	// Check existence before opening; Badger's own error for a missing
	// directory is long and unhelpful.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Store directory does not exist. No snapshots have been saved yet.")
		fmt.Println("Save one with `codebuddy snapshot save`.")
		os.Exit(0)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(nil).
		WithReadOnly(true)

	db, err := badger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	type entry struct {
		key       string
		meta      store.SnapshotMetadata
		decodeErr error
	}

	var entries []entry

	err = db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		prefix := []byte(snapKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, metaSuffix) {
				continue
			}

			e := entry{key: key}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			if err := json.Unmarshal(raw, &e.meta); err != nil {
				e.decodeErr = fmt.Errorf("decode metadata: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo snapshots found.")
		os.Exit(0)
	}

	// Newest first.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].meta.CreatedAtMilli > entries[j].meta.CreatedAtMilli
	})

	fmt.Printf("\nFound %d snapshot%s:\n", len(entries), plural(len(entries)))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		if e.decodeErr != nil {
			fmt.Printf("\n[%d] Key: %s\n    DECODE ERROR: %v\n", i+1, e.key, e.decodeErr)
			continue
		}
		m := e.meta
		created := time.UnixMilli(m.CreatedAtMilli).Format("2006-01-02 15:04:05 MST")
		label := m.Label
		if label == "" {
			label = "(unlabeled)"
		}

		fmt.Printf("\n[%d] Snapshot:    %s\n", i+1, m.SnapshotID)
		fmt.Printf("    Label:       %s\n", label)
		fmt.Printf("    Project:     %s (hash %s)\n", m.ProjectRoot, m.ProjectHash)
		fmt.Printf("    Created:     %s\n", created)
		fmt.Printf("    Schema:      %s\n", m.SchemaVersion)
		fmt.Printf("    Map hash:    %s\n", m.MapHash)
		fmt.Printf("    Contents:    %d symbols, %d edges, %d diagnostics\n",
			m.SymbolCount, m.EdgeCount, m.DiagnosticCount)
		fmt.Printf("    Compressed:  %s\n", formatBytes(m.CompressedSize))
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d snapshot%s, store path: %s\n", len(entries), plural(len(entries)), dbPath)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "snapshot_dump: "+format+"\n", args...)
	os.Exit(1)
}
