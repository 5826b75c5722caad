// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search finds symbols three ways: BM25 keyword ranking over
// names and summary text, fuzzy name lookup over the table, and
// semantic search over Weaviate-stored embeddings.
package search

import "strings"

// noiseTerms are dropped during tokenization: they appear in nearly
// every summary and carry no ranking signal.
var noiseTerms = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {},
	"to": {}, "in": {}, "for": {}, "is": {}, "it": {}, "this": {},
	"that": {}, "with": {}, "on": {}, "by": {}, "from": {},
	"function": {}, "returns": {}, "return": {},
}

// tokenize splits text into a deduplicated lowercase term set.
//
// C identifiers split on underscores and digit boundaries; mixed-case
// names split on case boundaries so "getFooBar" yields get, foo, bar.
// Terms shorter than two characters and noise terms are dropped.
func tokenize(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, word := range splitWords(text) {
		word = strings.ToLower(word)
		if len(word) < 2 {
			continue
		}
		if _, noisy := noiseTerms[word]; noisy {
			continue
		}
		terms[word] = struct{}{}
	}
	return terms
}

func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	prevLower := false
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			cur.WriteRune(r)
			prevLower = r >= 'a' && r <= 'z'
		case r >= 'A' && r <= 'Z':
			if prevLower {
				flush()
			}
			cur.WriteRune(r)
			prevLower = false
		default:
			flush()
			prevLower = false
		}
	}
	flush()
	return words
}
