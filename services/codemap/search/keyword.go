// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"math"
	"sort"
	"strings"

	"github.com/LunarLaurus/codebuddy/services/codemap/summarize"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// BM25 tuning constants, the standard Robertson et al. values.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Document is one indexed symbol: its name plus whatever summary text
// exists for it.
type Document struct {
	SymbolID string
	Name     string
	File     string
}

// bm25Doc is the tokenized form. Terms are deduplicated, so tf is
// binary presence; with short documents IDF does the heavy lifting.
type bm25Doc struct {
	doc Document
	tf  map[string]int
	len int
}

// Hit is one ranked keyword result.
type Hit struct {
	SymbolID string  `json:"symbol_id"`
	Name     string  `json:"name"`
	File     string  `json:"file,omitempty"`
	Score    float64 `json:"score"`
}

// KeywordIndex ranks symbols with Okapi BM25 over names and summaries.
//
// Thread Safety: immutable after construction, safe for concurrent use.
type KeywordIndex struct {
	docs   []bm25Doc
	idf    map[string]float64
	avgLen float64
}

// BuildKeywordIndex indexes every symbol in the table, folding in
// summary text when a report is supplied (may be nil).
//
// IDF uses Lucene-style add-one smoothing: log((N+1)/(df+1)) + 1.
func BuildKeywordIndex(table *symtab.Table, report *summarize.Report) *KeywordIndex {
	summaryByID := make(map[string]string)
	if report != nil {
		for _, f := range report.Functions {
			summaryByID[f.SymbolID] = f.Text
		}
	}

	var docs []bm25Doc
	totalLen := 0
	df := make(map[string]int)

	for _, sym := range table.Symbols() {
		text := sym.Name
		if summary := summaryByID[sym.ID]; summary != "" {
			text += " " + summary
		}
		terms := tokenize(text)
		if len(terms) == 0 {
			continue
		}
		tf := make(map[string]int, len(terms))
		for t := range terms {
			tf[t] = 1
			df[t]++
		}
		docs = append(docs, bm25Doc{
			doc: Document{SymbolID: sym.ID, Name: sym.Name, File: sym.File},
			tf:  tf,
			len: len(tf),
		})
		totalLen += len(tf)
	}

	idx := &KeywordIndex{docs: docs, idf: make(map[string]float64, len(df))}
	if len(docs) == 0 {
		return idx
	}
	n := len(docs)
	idx.avgLen = float64(totalLen) / float64(n)
	for term, docFreq := range df {
		idx.idf[term] = math.Log(float64(n+1)/float64(docFreq+1)) + 1.0
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *KeywordIndex) Len() int {
	return len(idx.docs)
}

// Search returns the top-k hits for a query, best first. Scores are
// normalized to [0, 1] against the best hit. Ties break by name so
// output is deterministic.
func (idx *KeywordIndex) Search(query string, k int) []Hit {
	if k <= 0 || len(idx.docs) == 0 {
		return nil
	}
	queryTerms := tokenize(query)
	// An exact name query must not be defeated by its own tokenizer:
	// keep the raw lowercased query as a term too.
	if raw := strings.ToLower(strings.TrimSpace(query)); raw != "" {
		queryTerms[raw] = struct{}{}
	}
	if len(queryTerms) == 0 {
		return nil
	}

	var hits []Hit
	var maxScore float64
	for _, d := range idx.docs {
		score := idx.scoreDoc(queryTerms, d)
		if score > 0 {
			hits = append(hits, Hit{
				SymbolID: d.doc.SymbolID,
				Name:     d.doc.Name,
				File:     d.doc.File,
				Score:    score,
			})
			if score > maxScore {
				maxScore = score
			}
		}
	}
	if maxScore > 0 {
		for i := range hits {
			hits[i].Score /= maxScore
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Name < hits[j].Name
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (idx *KeywordIndex) scoreDoc(queryTerms map[string]struct{}, d bm25Doc) float64 {
	dl := float64(d.len)
	var score float64
	for term := range queryTerms {
		tf, inDoc := d.tf[term]
		if !inDoc {
			continue
		}
		termIDF, known := idx.idf[term]
		if !known {
			continue
		}
		tfF := float64(tf)
		numerator := tfF * (bm25K1 + 1)
		lengthNorm := bm25K1 * (1.0 - bm25B + bm25B*dl/idx.avgLen)
		score += termIDF * (numerator / (tfF + lengthNorm))
	}
	return score
}
