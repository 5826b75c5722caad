// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command codebuddy builds and queries cross-file code maps for C
// projects: symbol tables, call graphs, diagnostics, summaries, and
// search, from one binary.
//
// Usage:
//
//	codebuddy map --root /path/to/project
//	codebuddy overview --root .
//	codebuddy callers parse_header
//	codebuddy watch
//	codebuddy snapshot save --label baseline
//	codebuddy projects select
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/config"
	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
	"github.com/LunarLaurus/codebuddy/services/codemap/project"
	"github.com/LunarLaurus/codebuddy/services/codemap/store"
)

// Persistent flag values shared by every subcommand.
var (
	flagRoot    string
	flagProject string
	flagJSON    bool
	flagVerbose bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "codebuddy",
		Short:         "Cross-file code maps for C projects",
		Long:          "codebuddy builds a symbol table and call graph for a C project\nand answers who-calls-whom queries, with snapshots, summaries, and search.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
				&slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVar(&flagRoot, "root", "", "project root (defaults to the selected project, then the working directory)")
	cmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "registered project name")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable JSON output")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newMapCmd(),
		newOverviewCmd(),
		newFindCmd(),
		newCallersCmd(),
		newCalleesCmd(),
		newWatchCmd(),
		newRefreshCmd(),
		newSummarizeCmd(),
		newSearchCmd(),
		newExportCmd(),
		newSnapshotCmd(),
		newProjectsCmd(),
		newBrowseCmd(),
	)
	return cmd
}

// resolveRoot picks the project root: --root wins, then --project or
// the registry's current selection, then the working directory.
func resolveRoot() (string, error) {
	if flagRoot != "" {
		return filepath.Abs(flagRoot)
	}

	regPath, err := project.DefaultPath()
	if err == nil {
		if reg, err := project.Load(regPath); err == nil {
			if flagProject != "" {
				p, err := reg.Get(flagProject)
				if err != nil {
					return "", err
				}
				return p.Root, nil
			}
			if p, ok := reg.CurrentProject(); ok {
				return p.Root, nil
			}
		}
	}
	if flagProject != "" {
		return "", fmt.Errorf("project %q not found in registry", flagProject)
	}
	return os.Getwd()
}

// loadConfig resolves the root and loads its layered configuration.
func loadConfig() (*config.Config, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	return config.Load(root, slog.Default())
}

// newPipeline builds a pipeline from config.
func newPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	return pipeline.New(ast.NewCParser(),
		pipeline.WithRoot(cfg.Root),
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithCacheSize(cfg.CacheSize),
		pipeline.WithExcludePrefixes(cfg.ExcludePrefixes...),
		pipeline.WithIncludeTests(cfg.IncludeTests),
		pipeline.WithIncludeVendor(cfg.IncludeVendor),
	)
}

// buildMap runs one full build for the configured root.
func buildMap(cmd *cobra.Command, cfg *config.Config) (*pipeline.Result, error) {
	p, err := newPipeline(cfg)
	if err != nil {
		return nil, err
	}
	return p.Build(cmd.Context())
}

// openSnapshots opens the project's local snapshot store.
func openSnapshots(cfg *config.Config) (*store.SnapshotManager, func(), error) {
	opts := badger.DefaultOptions(cfg.SnapshotDir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot store %s: %w", cfg.SnapshotDir, err)
	}
	manager, err := store.NewSnapshotManager(db, slog.Default())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return manager, func() { db.Close() }, nil
}

// summaryPath is where the summarize report is kept between runs.
func summaryPath(cfg *config.Config) string {
	return filepath.Join(cfg.Root, ".codebuddy", "summaries.json")
}
