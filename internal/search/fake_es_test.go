package search

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/usersearch/go-services/internal/models"
)

// fakeES answers the subset of the Elasticsearch REST API the store uses.
// It plugs in as the client's http.RoundTripper.
type fakeES struct {
	mu sync.Mutex

	index    string
	exists   bool
	settings json.RawMessage // analysis section as stored
	mappings json.RawMessage
	docs     map[string]models.User

	// createError, when set, is returned for index creation.
	createError string

	// rawSource replaces the _source returned in search hits for an id.
	rawSource map[string]json.RawMessage

	requests []*http.Request
	searches []json.RawMessage
}

func newFakeES(index string) *fakeES {
	return &fakeES{index: index, docs: map[string]models.User{}}
}

func (f *fakeES) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	rec := httptest.NewRecorder()
	rec.Header().Set("X-Elastic-Product", "Elasticsearch")
	rec.Header().Set("Content-Type", "application/json")
	f.serve(rec, req)
	return rec.Result(), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeES) indexMissing(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":  map[string]string{"type": "index_not_found_exception", "reason": "no such index [" + f.index + "]"},
		"status": 404,
	})
}

func (f *fakeES) serve(w http.ResponseWriter, req *http.Request) {
	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	if req.URL.Path == "/" || (len(parts) == 1 && parts[0] == "") {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name": "fake", "cluster_name": "test",
			"version": map[string]string{"number": "8.15.0", "build_flavor": "default"},
			"tagline": "You Know, for Search",
		})
		return
	}
	if parts[0] != f.index {
		f.indexMissing(w)
		return
	}

	switch {
	case len(parts) == 1 && req.Method == http.MethodPut:
		f.createIndex(w, req)
	case len(parts) == 2 && parts[1] == "_settings":
		if !f.exists {
			f.indexMissing(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			f.index: map[string]interface{}{"settings": map[string]interface{}{"index": map[string]interface{}{"analysis": f.settings}}},
		})
	case len(parts) == 2 && parts[1] == "_mapping":
		if !f.exists {
			f.indexMissing(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			f.index: map[string]interface{}{"mappings": f.mappings},
		})
	case len(parts) == 2 && parts[1] == "_search":
		f.search(w, req)
	case len(parts) == 3 && parts[1] == "_doc":
		f.doc(w, req, parts[2])
	case len(parts) == 3 && parts[1] == "_update" && req.Method == http.MethodPost:
		f.update(w, req, parts[2])
	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unsupported request " + req.Method + " " + req.URL.Path})
	}
}

func (f *fakeES) createIndex(w http.ResponseWriter, req *http.Request) {
	if f.createError != "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  map[string]string{"type": f.createError, "reason": "rejected by fake"},
			"status": 400,
		})
		return
	}
	if f.exists {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  map[string]string{"type": "resource_already_exists_exception", "reason": "index [" + f.index + "] already exists"},
			"status": 400,
		})
		return
	}
	var body struct {
		Settings struct {
			Analysis json.RawMessage `json:"analysis"`
		} `json:"settings"`
		Mappings json.RawMessage `json:"mappings"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	f.exists = true
	f.settings = body.Settings.Analysis
	f.mappings = body.Mappings
	writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true, "index": f.index})
}

func (f *fakeES) doc(w http.ResponseWriter, req *http.Request, id string) {
	switch req.Method {
	case http.MethodPut, http.MethodPost:
		var u models.User
		if err := json.NewDecoder(req.Body).Decode(&u); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
			return
		}
		// writes auto-create the index without the analyzer, as the engine does
		if !f.exists {
			f.exists = true
			f.settings = json.RawMessage(`{}`)
			f.mappings = json.RawMessage(`{"properties":{"username":{"type":"text"}}}`)
		}
		_, existed := f.docs[id]
		f.docs[id] = u
		result, status := "created", http.StatusCreated
		if existed {
			result, status = "updated", http.StatusOK
		}
		writeJSON(w, status, map[string]interface{}{"_index": f.index, "_id": id, "result": result})
	case http.MethodGet:
		if !f.exists {
			f.indexMissing(w)
			return
		}
		u, ok := f.docs[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"_index": f.index, "_id": id, "found": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"_index": f.index, "_id": id, "found": true, "_source": u})
	case http.MethodDelete:
		if !f.exists {
			f.indexMissing(w)
			return
		}
		if _, ok := f.docs[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"_index": f.index, "_id": id, "result": "not_found"})
			return
		}
		delete(f.docs, id)
		writeJSON(w, http.StatusOK, map[string]interface{}{"_index": f.index, "_id": id, "result": "deleted"})
	}
}

func (f *fakeES) update(w http.ResponseWriter, req *http.Request, id string) {
	if !f.exists {
		f.indexMissing(w)
		return
	}
	u, ok := f.docs[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":  map[string]string{"type": "document_missing_exception", "reason": "[" + id + "]: document missing"},
			"status": 404,
		})
		return
	}
	var body struct {
		Doc map[string]string `json:"doc"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if email, ok := body.Doc["email"]; ok {
		u.Email = email
	}
	f.docs[id] = u
	writeJSON(w, http.StatusOK, map[string]interface{}{"_index": f.index, "_id": id, "result": "updated"})
}

func (f *fakeES) search(w http.ResponseWriter, req *http.Request) {
	if !f.exists {
		f.indexMissing(w)
		return
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	f.searches = append(f.searches, raw)

	var body struct {
		Size  int `json:"size"`
		Query struct {
			MatchAll *struct{} `json:"match_all"`
			Match    map[string]struct {
				Query    string `json:"query"`
				Analyzer string `json:"analyzer"`
			} `json:"match"`
		} `json:"query"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	var ids []string
	if m, ok := body.Query.Match["username"]; ok {
		if m.Analyzer != "autocomplete_search" {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unexpected analyzer " + m.Analyzer})
			return
		}
		ids = f.matchUsername(m.Query, body.Size)
	} else {
		for id := range f.docs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if body.Size > 0 && len(ids) > body.Size {
			ids = ids[:body.Size]
		}
	}

	hits := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		var src interface{} = f.docs[id]
		if raw, ok := f.rawSource[id]; ok {
			src = raw
		}
		hits = append(hits, map[string]interface{}{"_index": f.index, "_id": id, "_score": 1.0, "_source": src})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hits": map[string]interface{}{"total": map[string]interface{}{"value": len(hits), "relation": "eq"}, "hits": hits},
	})
}

// wordsOf splits on anything that is not a letter or digit and lowercases,
// like the standard tokenizer plus a lowercase filter for plain ASCII names.
func wordsOf(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func gramBound(v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("bad gram bound %v", v)
}

// indexAnalysis returns the edge n-gram bounds the stored index applies to
// username, or ok=false when username is indexed as whole words.
func (f *fakeES) indexAnalysis() (minGram, maxGram int, ok bool) {
	var mapping struct {
		Properties map[string]struct {
			Analyzer string `json:"analyzer"`
		} `json:"properties"`
	}
	var analysis struct {
		Analyzer  map[string]struct{ Tokenizer string } `json:"analyzer"`
		Tokenizer map[string]map[string]interface{}    `json:"tokenizer"`
	}
	if json.Unmarshal(f.mappings, &mapping) != nil || json.Unmarshal(f.settings, &analysis) != nil {
		return 0, 0, false
	}
	an, found := analysis.Analyzer[mapping.Properties["username"].Analyzer]
	if !found {
		return 0, 0, false
	}
	tok := analysis.Tokenizer[an.Tokenizer]
	if tok["type"] != "edge_ngram" {
		return 0, 0, false
	}
	lo, err1 := gramBound(tok["min_gram"])
	hi, err2 := gramBound(tok["max_gram"])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// matchUsername scores each doc by how many query words hit one of its
// indexed terms, highest first, ties by id.
func (f *fakeES) matchUsername(query string, size int) []string {
	lo, hi, grams := f.indexAnalysis()
	type hit struct {
		id    string
		score int
	}
	var hits []hit
	for id, u := range f.docs {
		terms := map[string]bool{}
		for _, word := range wordsOf(u.Username) {
			if !grams {
				terms[word] = true
				continue
			}
			r := []rune(word)
			for n := lo; n <= hi && n <= len(r); n++ {
				terms[string(r[:n])] = true
			}
		}
		n := 0
		for _, q := range wordsOf(query) {
			if terms[q] {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, hit{id, n})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if size > 0 && len(ids) == size {
			break
		}
		ids = append(ids, h.id)
	}
	return ids
}

func (f *fakeES) lastSearch() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.searches) == 0 {
		return nil
	}
	var out map[string]interface{}
	_ = json.Unmarshal(f.searches[len(f.searches)-1], &out)
	return out
}

func (f *fakeES) lastRequest(method, pathPrefix string) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		r := f.requests[i]
		if r.Method == method && strings.HasPrefix(r.URL.Path, pathPrefix) {
			return r
		}
	}
	return nil
}
