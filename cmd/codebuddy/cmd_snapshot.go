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
	"time"

	"github.com/spf13/cobra"

	"github.com/LunarLaurus/codebuddy/services/codemap/config"
	"github.com/LunarLaurus/codebuddy/services/codemap/store"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list, diff, and back up code map snapshots",
	}
	cmd.AddCommand(
		newSnapshotSaveCmd(),
		newSnapshotListCmd(),
		newSnapshotLoadCmd(),
		newSnapshotDiffCmd(),
		newSnapshotDeleteCmd(),
		newSnapshotBackupCmd(),
	)
	return cmd
}

func newSnapshotSaveCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Build the map and save it as a snapshot",
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
			payload, err := store.NewPayload(result, cfg.Root)
			if err != nil {
				return err
			}

			snapshots, closeDB, err := openSnapshots(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			meta, err := snapshots.Save(cmd.Context(), payload, label)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd, meta)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved snapshot %s (%d symbols, %d edges)\n",
				meta.SnapshotID, meta.SymbolCount, meta.EdgeCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "human-readable label for the snapshot")
	return cmd
}

func newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots saved for this project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			snapshots, closeDB, err := openSnapshots(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			metas, err := snapshots.List(cmd.Context(), cfg.Root)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd, metas)
			}
			if len(metas) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshots saved for this project.")
				return nil
			}
			for _, m := range metas {
				when := time.UnixMilli(m.CreatedAtMilli).Format("2006-01-02 15:04:05")
				label := m.Label
				if label == "" {
					label = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-20s  %d symbols, %d edges\n",
					m.SnapshotID, when, label, m.SymbolCount, m.EdgeCount)
			}
			return nil
		},
	}
}

func newSnapshotLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [snapshot-id]",
		Short: "Print a saved snapshot (latest when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			snapshots, closeDB, err := openSnapshots(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			payload, meta, err := loadSnapshotArg(cmd, cfg, snapshots, args)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd, payload)
			}
			when := time.UnixMilli(meta.CreatedAtMilli).Format("2006-01-02 15:04:05")
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s saved %s: %d symbols, %d edges, %d diagnostics\n",
				meta.SnapshotID, when, meta.SymbolCount, meta.EdgeCount, meta.DiagnosticCount)
			return nil
		},
	}
}

func newSnapshotDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <old-id> [new-id]",
		Short: "Diff two snapshots (or a snapshot against the current tree)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			snapshots, closeDB, err := openSnapshots(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			oldP, _, err := snapshots.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var newP *store.Payload
			if len(args) == 2 {
				newP, _, err = snapshots.Load(cmd.Context(), args[1])
			} else {
				// No new id: rebuild and diff against the tree as it is now.
				result, buildErr := buildMap(cmd, cfg)
				if buildErr != nil {
					return buildErr
				}
				newP, err = store.NewPayload(result, cfg.Root)
			}
			if err != nil {
				return err
			}

			diff, err := store.DiffPayloads(oldP, newP)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd, diff)
			}
			printDiff(cmd, diff)
			return nil
		},
	}
}

func newSnapshotDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a saved snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			snapshots, closeDB, err := openSnapshots(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := snapshots.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted snapshot %s\n", args[0])
			return nil
		},
	}
}

func newSnapshotBackupCmd() *cobra.Command {
	var credentials string
	cmd := &cobra.Command{
		Use:   "backup [snapshot-id]",
		Short: "Upload a snapshot to the configured GCS bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Backup.GCSBucket == "" {
				return fmt.Errorf("no backup bucket configured (backup.gcs_bucket)")
			}
			snapshots, closeDB, err := openSnapshots(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			payload, meta, err := loadSnapshotArg(cmd, cfg, snapshots, args)
			if err != nil {
				return err
			}

			var opts []store.GCSOption
			if credentials != "" {
				opts = append(opts, store.WithCredentialsFile(credentials))
			}
			backup, err := store.NewGCSBackup(cmd.Context(), cfg.Backup.GCSBucket, slog.Default(), opts...)
			if err != nil {
				return err
			}
			defer backup.Close()

			object, err := backup.Upload(cmd.Context(), payload, meta.SnapshotID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded snapshot %s to gs://%s/%s\n",
				meta.SnapshotID, cfg.Backup.GCSBucket, object)
			return nil
		},
	}
	cmd.Flags().StringVar(&credentials, "credentials", "", "service account key file (default: ambient credentials)")
	return cmd
}

// loadSnapshotArg loads the snapshot named by args[0], or the project's
// latest snapshot when no id was given.
func loadSnapshotArg(cmd *cobra.Command, cfg *config.Config, snapshots *store.SnapshotManager, args []string) (*store.Payload, *store.SnapshotMetadata, error) {
	if len(args) > 0 {
		return snapshots.Load(cmd.Context(), args[0])
	}
	return snapshots.LoadLatest(cmd.Context(), cfg.Root)
}

func printDiff(cmd *cobra.Command, diff *store.SnapshotDiff) {
	out := cmd.OutOrStdout()
	if diff.Empty() {
		fmt.Fprintln(out, "No changes.")
		return
	}
	for _, s := range diff.AddedSymbols {
		fmt.Fprintf(out, "+ symbol %s\n", s.Name)
	}
	for _, s := range diff.RemovedSymbols {
		fmt.Fprintf(out, "- symbol %s\n", s.Name)
	}
	for _, c := range diff.ChangedSymbols {
		fmt.Fprintf(out, "~ symbol %s (%v)\n", c.Name, c.Fields)
	}
	for _, e := range diff.AddedEdges {
		fmt.Fprintf(out, "+ edge %s -> %s\n", e.CallerID, e.CalleeID)
	}
	for _, e := range diff.RemovedEdges {
		fmt.Fprintf(out, "- edge %s -> %s\n", e.CallerID, e.CalleeID)
	}
}
