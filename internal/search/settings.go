package search

import (
	"encoding/json"
	"fmt"
)

// Analysis names installed on the users index.
const (
	TokenizerName      = "autocomplete"
	AnalyzerName       = "autocomplete"
	SearchAnalyzerName = "autocomplete_search"

	MinGram = 1
	MaxGram = 50
)

// IndexBody is the create-index payload: an edge n-gram tokenizer over letters
// and digits, applied to username at index time only. Queries use a plain
// lowercased standard analyzer so "ali" matches "alice01" but not "anna".
func IndexBody() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"index": map[string]interface{}{
				"max_ngram_diff": MaxGram - MinGram,
			},
			"analysis": map[string]interface{}{
				"tokenizer": map[string]interface{}{
					TokenizerName: map[string]interface{}{
						"type":        "edge_ngram",
						"min_gram":    MinGram,
						"max_gram":    MaxGram,
						"token_chars": []string{"letter", "digit"},
					},
				},
				"analyzer": map[string]interface{}{
					AnalyzerName: map[string]interface{}{
						"type":      "custom",
						"tokenizer": TokenizerName,
						"filter":    []string{"lowercase"},
					},
					SearchAnalyzerName: map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"username": map[string]interface{}{
					"type":            "text",
					"analyzer":        AnalyzerName,
					"search_analyzer": SearchAnalyzerName,
				},
				"email": map[string]interface{}{
					"type":  "keyword",
					"index": false,
				},
			},
		},
	}
}

// settingsResponse is GET /<index>/_settings, keyed by concrete index name.
type settingsResponse map[string]struct {
	Settings struct {
		Index struct {
			Analysis struct {
				Tokenizer map[string]struct {
					Type string `json:"type"`
				} `json:"tokenizer"`
				Analyzer map[string]struct {
					Tokenizer string `json:"tokenizer"`
				} `json:"analyzer"`
			} `json:"analysis"`
		} `json:"index"`
	} `json:"settings"`
}

// mappingResponse is GET /<index>/_mapping, keyed by concrete index name.
type mappingResponse map[string]struct {
	Mappings struct {
		Properties map[string]struct {
			Type     string `json:"type"`
			Analyzer string `json:"analyzer"`
		} `json:"properties"`
	} `json:"mappings"`
}

// checkConfigured reports why an existing index does not carry the
// autocomplete configuration, or nil when it does.
func checkConfigured(settingsBody, mappingBody []byte) error {
	var sr settingsResponse
	if err := json.Unmarshal(settingsBody, &sr); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	var mr mappingResponse
	if err := json.Unmarshal(mappingBody, &mr); err != nil {
		return fmt.Errorf("decode mapping: %w", err)
	}
	if len(sr) == 0 || len(mr) == 0 {
		return fmt.Errorf("empty settings or mapping response")
	}

	for name, idx := range sr {
		analysis := idx.Settings.Index.Analysis
		an, ok := analysis.Analyzer[AnalyzerName]
		if !ok {
			return fmt.Errorf("index %s has no %q analyzer", name, AnalyzerName)
		}
		if tok, ok := analysis.Tokenizer[an.Tokenizer]; !ok || tok.Type != "edge_ngram" {
			return fmt.Errorf("index %s: analyzer %q does not use an edge_ngram tokenizer", name, AnalyzerName)
		}
		if _, ok := analysis.Analyzer[SearchAnalyzerName]; !ok {
			return fmt.Errorf("index %s has no %q analyzer", name, SearchAnalyzerName)
		}
	}
	for name, idx := range mr {
		field, ok := idx.Mappings.Properties["username"]
		if !ok {
			return fmt.Errorf("index %s has no username mapping", name)
		}
		if field.Analyzer != AnalyzerName {
			return fmt.Errorf("index %s: username analyzer is %q, want %q", name, field.Analyzer, AnalyzerName)
		}
	}
	return nil
}
