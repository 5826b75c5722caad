// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the map whenever the source tree changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			watcher := pipeline.NewWatcher(p)
			watcher.SetDebounce(time.Duration(cfg.DebounceMillis) * time.Millisecond)
			results := watcher.Subscribe()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (ctrl-c to stop)\n", cfg.Root)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return watcher.Run(ctx)
			})
			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case result := <-results:
						s := result.Stats
						fmt.Fprintf(cmd.OutOrStdout(),
							"[%s] rebuilt in %dms: %d symbols, %d edges, %d issues\n",
							time.Now().Format("15:04:05"),
							s.DurationMilli, s.Symbols, s.Edges, s.Diagnostics)
					}
				}
			})

			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var diffFile string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Apply a unified diff to an existing map without reparsing the tree",
		Long: "refresh builds the map once, then applies a git-style unified diff\n" +
			"(from stdin or --diff) and reparses only the touched files.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var diff []byte
			if diffFile != "" {
				diff, err = os.ReadFile(diffFile)
			} else {
				diff, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read diff: %w", err)
			}
			if len(diff) == 0 {
				return fmt.Errorf("empty diff: pipe one in or pass --diff")
			}

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			if _, err := p.Build(cmd.Context()); err != nil {
				return err
			}
			result, err := p.Refresh(cmd.Context(), diff)
			if err != nil {
				return err
			}

			s := result.Stats
			fmt.Fprintf(cmd.OutOrStdout(),
				"Refreshed in %dms: %d parsed, %d cache hits, %d symbols, %d edges\n",
				s.DurationMilli, s.FilesParsed, s.CacheHits, s.Symbols, s.Edges)
			return nil
		},
	}
	cmd.Flags().StringVar(&diffFile, "diff", "", "read the unified diff from this file instead of stdin")
	return cmd
}
