// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

var semanticTracer = otel.Tracer("codebuddy.search")

// Embedder produces embedding vectors for text. Satisfied by
// langchaingo's embeddings.Embedder.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SemanticIndex stores per-symbol embeddings in Weaviate and answers
// nearVector queries.
//
// One Weaviate class per project; the class carries externally
// supplied vectors (vectorizer "none"). Object ids are uuid5 of the
// symbol id so re-indexing upserts instead of duplicating.
type SemanticIndex struct {
	client   *weaviate.Client
	embedder Embedder
	cache    *EmbedCache
	class    string
	logger   *slog.Logger
}

// SemanticHit is one semantic search result.
type SemanticHit struct {
	SymbolID string  `json:"symbol_id"`
	Name     string  `json:"name"`
	File     string  `json:"file,omitempty"`
	Distance float64 `json:"distance"`
}

// NewSemanticIndex connects to Weaviate and ensures the project class.
//
// Inputs:
//   - host, scheme: Weaviate location, e.g. "localhost:8080", "http".
//   - projectRoot: Distinguishes projects; hashed into the class name.
//   - embedder: Produces vectors; nil is rejected.
//   - cache: Optional embedding cache, may be nil.
func NewSemanticIndex(ctx context.Context, host, scheme, projectRoot string, embedder Embedder, cache *EmbedCache, logger *slog.Logger) (*SemanticIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	idx := &SemanticIndex{
		client:   client,
		embedder: embedder,
		cache:    cache,
		class:    classNameFor(projectRoot),
		logger:   logger,
	}
	if err := idx.ensureClass(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// classNameFor derives a valid Weaviate class name for a project.
// Class names must start uppercase and stay alphanumeric.
func classNameFor(projectRoot string) string {
	sum := sha256.Sum256([]byte(projectRoot))
	return "CodemapSymbols_" + hex.EncodeToString(sum[:])[:12]
}

func (s *SemanticIndex) ensureClass(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.class).Do(ctx)
	if err != nil {
		return fmt.Errorf("check class %s: %w", s.class, err)
	}
	if exists {
		return nil
	}
	class := &models.Class{
		Class:      s.class,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "symbolId", DataType: []string{"text"}},
			{Name: "name", DataType: []string{"text"}},
			{Name: "file", DataType: []string{"text"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", s.class, err)
	}
	s.logger.Info("Weaviate class created", slog.String("class", s.class))
	return nil
}

// IndexSymbols embeds and upserts every defined function symbol.
//
// Description:
//
//	The embedded text is the symbol's snippet (name as fallback). An
//	unchanged snippet hash hits the cache and skips the embedding
//	call; Weaviate still receives the upsert so a fresh class
//	converges to the full symbol set.
//
// Outputs:
//   - int: Symbols indexed.
//   - error: The first embedding or upsert failure.
func (s *SemanticIndex) IndexSymbols(ctx context.Context, symbols []*symtab.Symbol) (int, error) {
	ctx, span := semanticTracer.Start(ctx, "search.IndexSymbols")
	defer span.End()

	indexed := 0
	cacheHits := 0
	for _, sym := range symbols {
		if sym.Kind != symtab.KindFunction || !sym.HasDefinition {
			continue
		}
		text := sym.Snippet
		if strings.TrimSpace(text) == "" {
			text = sym.Name
		}

		vec, hit, err := s.cachedEmbed(ctx, sym.Hash, text)
		if err != nil {
			return indexed, fmt.Errorf("embed %s: %w", sym.Name, err)
		}
		if hit {
			cacheHits++
		}

		_, err = s.client.Data().Creator().
			WithClassName(s.class).
			WithID(objectIDFor(sym.ID)).
			WithProperties(map[string]any{
				"symbolId": sym.ID,
				"name":     sym.Name,
				"file":     sym.File,
			}).
			WithVector(vec).
			Do(ctx)
		if err != nil {
			// Creator fails on an existing id; replace instead.
			err = s.client.Data().Updater().
				WithClassName(s.class).
				WithID(objectIDFor(sym.ID)).
				WithProperties(map[string]any{
					"symbolId": sym.ID,
					"name":     sym.Name,
					"file":     sym.File,
				}).
				WithVector(vec).
				Do(ctx)
			if err != nil {
				return indexed, fmt.Errorf("upsert %s: %w", sym.Name, err)
			}
		}
		indexed++
	}

	span.SetAttributes(
		attribute.Int("indexed", indexed),
		attribute.Int("cache_hits", cacheHits),
	)
	s.logger.Info("Semantic index updated",
		slog.String("class", s.class),
		slog.Int("indexed", indexed),
		slog.Int("cache_hits", cacheHits))
	return indexed, nil
}

// cachedEmbed returns the vector for text, consulting the cache by
// snippet hash when one is available.
func (s *SemanticIndex) cachedEmbed(ctx context.Context, snippetHash, text string) ([]float32, bool, error) {
	if s.cache != nil && snippetHash != "" {
		if vec, ok, err := s.cache.Get(snippetHash); err != nil {
			return nil, false, err
		} else if ok {
			return vec, true, nil
		}
	}
	vecs, err := s.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, false, err
	}
	if len(vecs) != 1 {
		return nil, false, fmt.Errorf("embedder returned %d vectors for one text", len(vecs))
	}
	if s.cache != nil && snippetHash != "" {
		if err := s.cache.Put(snippetHash, vecs[0]); err != nil {
			return nil, false, err
		}
	}
	return vecs[0], false, nil
}

// Search embeds the query and runs a nearVector lookup.
func (s *SemanticIndex) Search(ctx context.Context, query string, k int) ([]SemanticHit, error) {
	if k <= 0 {
		return nil, nil
	}
	ctx, span := semanticTracer.Start(ctx, "search.Semantic")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)
	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(
			graphql.Field{Name: "symbolId"},
			graphql.Field{Name: "name"},
			graphql.Field{Name: "file"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
		).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("near-vector query: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("near-vector query: %s", result.Errors[0].Message)
	}

	return parseHits(result.Data, s.class), nil
}

// parseHits walks the GraphQL response shape {Get: {<class>: [...]}}.
func parseHits(data map[string]models.JSONObject, class string) []SemanticHit {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	rows, ok := get[class].([]any)
	if !ok {
		return nil
	}
	hits := make([]SemanticHit, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		hit := SemanticHit{}
		if v, ok := obj["symbolId"].(string); ok {
			hit.SymbolID = v
		}
		if v, ok := obj["name"].(string); ok {
			hit.Name = v
		}
		if v, ok := obj["file"].(string); ok {
			hit.File = v
		}
		if add, ok := obj["_additional"].(map[string]any); ok {
			if d, ok := add["distance"].(float64); ok {
				hit.Distance = d
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

// objectIDFor derives a stable Weaviate object id from a symbol id,
// so re-indexing the same symbol overwrites its object.
func objectIDFor(symbolID string) string {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(symbolID)).String()).String()
}
