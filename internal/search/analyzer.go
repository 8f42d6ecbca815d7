package search

import (
	"sort"
	"strings"
	"unicode"
)

// In-process rendition of the autocomplete analyzers, used by the memory and
// mongo stores so every backend answers prefix queries the same way.

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// tokens splits s into lowercased runs of letters and digits.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !isWordRune(r) })
}

// indexTerms returns the edge n-grams emitted for s at index time.
func indexTerms(s string) map[string]struct{} {
	terms := map[string]struct{}{}
	for _, tok := range tokens(s) {
		runes := []rune(tok)
		for n := MinGram; n <= len(runes) && n <= MaxGram; n++ {
			terms[string(runes[:n])] = struct{}{}
		}
	}
	return terms
}

// queryTokens returns the distinct search-time tokens of text. Tokens longer
// than MaxGram can never equal an index term and are dropped.
func queryTokens(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range tokens(text) {
		if len([]rune(tok)) > MaxGram {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// score counts query tokens present among the index terms of username.
func score(username string, query []string) int {
	terms := indexTerms(username)
	n := 0
	for _, q := range query {
		if _, ok := terms[q]; ok {
			n++
		}
	}
	return n
}

type scored struct {
	name  string
	score int
}

// rank orders candidates by score, then name, and keeps at most limit.
func rank(cands []scored, limit int) []string {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].name < cands[j].name
	})
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, c.name)
	}
	return out
}
