// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/LunarLaurus/codebuddy/services/codemap/store"
)

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the code map to a SQLite database",
		Long: "export builds the map and writes symbols, edges, and diagnostics\n" +
			"to a SQLite file for ad-hoc SQL analysis.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := buildMap(cmd, cfg)
			if err != nil {
				return err
			}
			payload, err := store.NewPayload(result, cfg.Root)
			if err != nil {
				return err
			}
			if err := store.ExportSQLite(cmd.Context(), payload, out, slog.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d symbols and %d edges to %s\n",
				len(payload.Symbols), len(payload.Edges), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "codemap.db", "output SQLite file")
	return cmd
}
