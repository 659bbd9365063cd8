// Package search ranks task titles against a free-text query.
//
// Titles and queries are split into lower-case letter/digit tokens. Every
// query token that appears as a whole title token scores a full point; the
// last query token also matches as a prefix, so results refine while the user
// is still typing. Documents that match nothing are dropped.
package search

import (
	"sort"
	"strings"
	"unicode"
)

// Tokenize splits s into lower-case runs of letters and digits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Terms returns the distinct query tokens in order of first appearance.
func Terms(query string) []string {
	tokens := Tokenize(query)
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

const (
	exactWeight  = 1.0
	prefixWeight = 0.5
)

// Score rates how well text matches terms. Zero means no match.
func Score(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	last := len(terms) - 1

	var score float64
	for i, term := range terms {
		best := 0.0
		for _, tok := range tokens {
			if tok == term {
				best = exactWeight
				break
			}
			if i == last && strings.HasPrefix(tok, term) {
				best = prefixWeight
			}
		}
		score += best
	}
	// Shorter titles with the same hits rank higher.
	return score + score/float64(len(tokens)+1)
}

// Rank orders items by descending score of text(item) against query and drops
// non-matching ones. Ties keep their input order.
func Rank[T any](query string, items []T, text func(T) string) []T {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		item  T
		score float64
	}
	hits := make([]scored, 0, len(items))
	for _, item := range items {
		if s := Score(terms, text(item)); s > 0 {
			hits = append(hits, scored{item: item, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	out := make([]T, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}
