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

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/LunarLaurus/codebuddy/services/codemap/config"
	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
	"github.com/LunarLaurus/codebuddy/services/codemap/search"
	"github.com/LunarLaurus/codebuddy/services/llm"
)

func newSearchCmd() *cobra.Command {
	var (
		limit    int
		semantic bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search symbols by keyword, folding in generated summaries",
		Long: "search ranks symbols with BM25 over their names and any summaries\n" +
			"produced by `codebuddy summarize`. With --semantic it instead embeds\n" +
			"the query and runs a nearVector search against Weaviate.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := buildMap(cmd, cfg)
			if err != nil {
				return err
			}

			if semantic {
				return runSemanticSearch(cmd, cfg, result, args[0], limit)
			}

			idx := search.BuildKeywordIndex(result.Table, loadPreviousReport(cfg))
			hits := idx.Search(args[0], limit)
			if flagJSON {
				return printJSON(cmd, hits)
			}
			if len(hits) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No symbols match %q.\n", args[0])
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "%6.2f  %s  %s\n", h.Score, h.Name, h.File)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	cmd.Flags().BoolVar(&semantic, "semantic", false, "embed the query and search Weaviate instead of BM25")
	return cmd
}

// runSemanticSearch indexes the build's symbols into Weaviate and runs
// a nearVector query. Embeddings are cached locally by snippet hash, so
// re-running over an unchanged tree only embeds the query.
func runSemanticSearch(cmd *cobra.Command, cfg *config.Config, result *pipeline.Result, query string, limit int) error {
	if cfg.Search.WeaviateHost == "" {
		return fmt.Errorf("no weaviate host configured (search.weaviate_host)")
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.SnapshotDir).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("open embedding cache: %w", err)
	}
	defer db.Close()
	cache, err := search.NewEmbedCache(db)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	idx, err := search.NewSemanticIndex(ctx, cfg.Search.WeaviateHost, cfg.Search.WeaviateScheme,
		cfg.Root, embedder, cache, slog.Default())
	if err != nil {
		return err
	}

	indexed, err := idx.IndexSymbols(ctx, result.Table.Symbols())
	if err != nil {
		return err
	}
	slog.Debug("semantic index ready", slog.Int("indexed", indexed))

	hits, err := idx.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, hits)
	}
	if len(hits) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No symbols near %q.\n", query)
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(cmd.OutOrStdout(), "%6.3f  %s  %s\n", h.Distance, h.Name, h.File)
	}
	return nil
}

// newEmbedder builds a langchaingo embedder from the LLM config. Only
// OpenAI-compatible providers expose an embeddings endpoint.
func newEmbedder(cfg *config.Config) (search.Embedder, error) {
	provider := cfg.LLM.Provider
	if provider != llm.ProviderOpenAI && provider != llm.ProviderLocal {
		return nil, fmt.Errorf("semantic search needs an openai-compatible llm provider, got %q", provider)
	}

	opts := []openai.Option{}
	if cfg.LLM.Endpoint != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.Endpoint))
	} else if provider == llm.ProviderLocal {
		return nil, fmt.Errorf("local provider requires an endpoint")
	}
	if key, err := llm.KeyFromEnv(provider); err == nil {
		token, err := key.Reveal()
		if err != nil {
			return nil, err
		}
		opts = append(opts, openai.WithToken(token))
	} else if provider == llm.ProviderLocal {
		opts = append(opts, openai.WithToken("unused"))
	} else {
		return nil, err
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create embeddings client: %w", err)
	}
	return embeddings.NewEmbedder(client)
}
