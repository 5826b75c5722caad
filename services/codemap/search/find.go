// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"sort"
	"strings"

	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
)

// Match is one fuzzy lookup result.
type Match struct {
	Symbol    *symtab.Symbol `json:"symbol"`
	MatchType string         `json:"match_type"`

	// score is the composite rank; lower is better. Kept private, the
	// ordering of the returned slice is the contract.
	score int
}

// Match type labels, strongest first.
const (
	matchExact     = "exact"
	matchPrefix    = "prefix"
	matchSubstring = "substring"
	matchFuzzy     = "fuzzy"
)

// Find ranks table symbols against a query name.
//
// Description:
//
//	Match classes rank exact > prefix > substring > levenshtein, with
//	position and length penalties inside a class so earlier and
//	shorter matches win. The fuzzy threshold scales with query length
//	(30% edit rate, minimum 2). Comparison is case-insensitive.
//
// Outputs:
//   - []Match: At most k matches, best first; ties break by name.
func Find(table *symtab.Table, query string, k int) []Match {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil
	}
	queryLower := strings.ToLower(query)

	var matches []Match
	for _, name := range table.Names() {
		sym, _ := table.Lookup(name)
		score, matchType := scoreName(name, queryLower)
		if score < 0 {
			continue
		}
		matches = append(matches, Match{Symbol: sym, MatchType: matchType, score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		return matches[i].Symbol.Name < matches[j].Symbol.Name
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// scoreName returns the composite score for one candidate, or -1 for
// no match. Composite layout: class*10000 + position*100 + length.
func scoreName(name, queryLower string) (int, string) {
	nameLower := strings.ToLower(name)

	if nameLower == queryLower {
		return 0, matchExact
	}

	var class int
	var matchType string
	var pos int
	switch {
	case strings.HasPrefix(nameLower, queryLower):
		class, matchType, pos = 1, matchPrefix, 0
	default:
		if p := strings.Index(nameLower, queryLower); p >= 0 {
			class, matchType, pos = 2, matchSubstring, p
		} else {
			threshold := len(queryLower) / 3
			if threshold < 2 {
				threshold = 2
			}
			if levenshtein(nameLower, queryLower) <= threshold {
				class, matchType, pos = 3, matchFuzzy, 0
			} else {
				return -1, ""
			}
		}
	}

	positionPenalty := 0
	if len(name) > 0 && pos > 0 {
		positionPenalty = min(99, (pos*100)/len(name))
	}
	lengthDiff := len(name) - len(queryLower)
	if lengthDiff < 0 {
		lengthDiff = -lengthDiff
	}
	lengthPenalty := min(99, lengthDiff)

	return class*10000 + positionPenalty*100 + lengthPenalty, matchType
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
