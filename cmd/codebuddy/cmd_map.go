// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LunarLaurus/codebuddy/services/codemap/overview"
)

func newMapCmd() *cobra.Command {
	var showDiags bool
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Build the code map and print build stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := buildMap(cmd, cfg)
			if err != nil {
				return err
			}

			if flagJSON {
				data, err := json.MarshalIndent(result.Stats, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			out := cmd.OutOrStdout()
			s := result.Stats
			fmt.Fprintf(out, "Mapped %s in %dms\n", cfg.Root, s.DurationMilli)
			fmt.Fprintf(out, "  files     %d walked, %d parsed, %d failed, %d cache hits\n",
				s.FilesWalked, s.FilesParsed, s.FilesFailed, s.CacheHits)
			fmt.Fprintf(out, "  symbols   %d\n", s.Symbols)
			fmt.Fprintf(out, "  edges     %d\n", s.Edges)
			fmt.Fprintf(out, "  issues    %d\n", s.Diagnostics)

			if showDiags && result.Diagnostics.Len() > 0 {
				fmt.Fprintln(out)
				for _, d := range result.Diagnostics.Items() {
					fmt.Fprintf(out, "  %s\n", d)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDiags, "diagnostics", false, "list every diagnostic after the stats")
	return cmd
}

func newOverviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Build the code map and print an aggregated report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := buildMap(cmd, cfg)
			if err != nil {
				return err
			}
			report, err := overview.Build(result, cfg.Root)
			if err != nil {
				return err
			}
			if flagJSON {
				data, err := report.EncodeJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			// Render styles itself based on whether stdout is a TTY.
			fmt.Fprint(os.Stdout, report.Render())
			return nil
		},
	}
}
