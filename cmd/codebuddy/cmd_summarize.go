// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/LunarLaurus/codebuddy/services/codemap/config"
	"github.com/LunarLaurus/codebuddy/services/codemap/store"
	"github.com/LunarLaurus/codebuddy/services/codemap/summarize"
	"github.com/LunarLaurus/codebuddy/services/llm"
)

func newSummarizeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Generate natural-language summaries for every mapped function",
		Long: "summarize builds the map, then asks the configured LLM for a short\n" +
			"summary of each defined function and each file. Summaries whose\n" +
			"function bodies are unchanged since the last run are reused without\n" +
			"a model call. The report lands in .codebuddy/summaries.json.",
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

			client, err := newLLMClient(cfg)
			if err != nil {
				return err
			}

			var prev *summarize.Report
			if !force {
				prev = loadPreviousReport(cfg)
			}

			summarizer, err := summarize.NewSummarizer(client, slog.Default())
			if err != nil {
				return err
			}
			report, err := summarizer.Run(cmd.Context(), result.Projector, payload.MapHash, prev)
			if err != nil {
				return err
			}

			if err := saveReport(cfg, report); err != nil {
				return err
			}

			if flagJSON {
				return printJSON(cmd, report)
			}
			reused := 0
			for _, f := range report.Functions {
				if f.Reused {
					reused++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Summarized %d functions (%d reused) and %d files with %s\n",
				len(report.Functions), reused, len(report.Files), report.Model)
			fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", summaryPath(cfg))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "regenerate everything, ignoring the previous report")
	return cmd
}

// newLLMClient builds a guarded client from the project's LLM config.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	key, err := llm.KeyFromEnv(cfg.LLM.Provider)
	if err != nil {
		// Local endpoints commonly run keyless.
		if !errors.Is(err, llm.ErrNoAPIKey) || cfg.LLM.Provider != llm.ProviderLocal {
			return nil, err
		}
		key = nil
	}
	return llm.NewClient(llm.Options{
		Provider:          cfg.LLM.Provider,
		Model:             cfg.LLM.Model,
		Endpoint:          cfg.LLM.Endpoint,
		Key:               key,
		MaxPromptBytes:    cfg.LLM.MaxPromptBytes,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		Logger:            slog.Default(),
	})
}

// loadPreviousReport reads the last saved report, if any. A missing or
// unreadable report just means nothing gets reused.
func loadPreviousReport(cfg *config.Config) *summarize.Report {
	data, err := os.ReadFile(summaryPath(cfg))
	if err != nil {
		return nil
	}
	report, err := summarize.DecodeReport(data)
	if err != nil {
		slog.Warn("ignoring unreadable summary report",
			slog.String("path", summaryPath(cfg)),
			slog.String("error", err.Error()))
		return nil
	}
	return report
}

func saveReport(cfg *config.Config, report *summarize.Report) error {
	data, err := report.Encode()
	if err != nil {
		return err
	}
	path := summaryPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
