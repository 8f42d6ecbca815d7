package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/usersearch/go-services/internal/models"
	"github.com/usersearch/go-services/internal/users"
	"github.com/usersearch/go-services/pkg/logger"
)

// ElasticConfig holds the connection settings for NewElastic.
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	// Refresh is passed to write APIs ("", "true", "false", "wait_for").
	Refresh string
	// Timeout bounds each engine call on top of the caller's context.
	Timeout time.Duration
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Elastic implements users.Store on an Elasticsearch index.
type Elastic struct {
	es      *elasticsearch.Client
	index   string
	refresh string
	timeout time.Duration
}

var _ users.Store = (*Elastic)(nil)

// NewElastic builds the client once; its transport pools connections for
// every request the service handles.
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	if cfg.Index == "" {
		return nil, errors.New("elasticsearch: index name is required")
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &Elastic{es: es, index: cfg.Index, refresh: cfg.Refresh, timeout: cfg.Timeout}, nil
}

func (e *Elastic) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// do runs req, returning the response only for 2xx and 404 answers. Any other
// status is turned into a *ResponseError. The caller closes the body.
func (e *Elastic) do(ctx context.Context, op string, req esapi.Request) (*esapi.Response, error) {
	res, err := req.Do(ctx, e.es)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s: %w", op, err)
	}
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		defer res.Body.Close()
		return nil, fmt.Errorf("elasticsearch %s: %w", op, responseError(res))
	}
	return res, nil
}

func drain(res *esapi.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()
}

// EnsureIndex creates the index with the autocomplete analysis. When the
// index already exists its settings and mapping are read back; a mismatch is
// reported as users.ErrIndexMisconfigured and left for an operator to fix.
func (e *Elastic) EnsureIndex(ctx context.Context) error {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	body, err := json.Marshal(IndexBody())
	if err != nil {
		return err
	}
	res, err := esapi.IndicesCreateRequest{Index: e.index, Body: bytes.NewReader(body)}.Do(ctx, e.es)
	if err != nil {
		return fmt.Errorf("elasticsearch create index %s: %w", e.index, err)
	}
	if !res.IsError() {
		drain(res)
		logger.Infof("created index %s with %s analyzer", e.index, AnalyzerName)
		return nil
	}
	rerr := responseError(res)
	res.Body.Close()
	if rerr.Type != "resource_already_exists_exception" {
		return fmt.Errorf("elasticsearch create index %s: %w", e.index, rerr)
	}

	settings, err := e.readAll(ctx, "get settings", esapi.IndicesGetSettingsRequest{Index: []string{e.index}})
	if err != nil {
		return err
	}
	mapping, err := e.readAll(ctx, "get mapping", esapi.IndicesGetMappingRequest{Index: []string{e.index}})
	if err != nil {
		return err
	}
	if err := checkConfigured(settings, mapping); err != nil {
		return fmt.Errorf("%w: %v", users.ErrIndexMisconfigured, err)
	}
	logger.Debugf("index %s already configured", e.index)
	return nil
}

func (e *Elastic) readAll(ctx context.Context, op string, req esapi.Request) ([]byte, error) {
	res, err := e.do(ctx, op, req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("elasticsearch %s: %w", op, responseError(res))
	}
	return io.ReadAll(res.Body)
}

func (e *Elastic) Put(ctx context.Context, u *models.User) error {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	body, err := json.Marshal(u)
	if err != nil {
		return err
	}
	res, err := e.do(ctx, "index", esapi.IndexRequest{
		Index:      e.index,
		DocumentID: u.Username,
		Body:       bytes.NewReader(body),
		Refresh:    e.refresh,
	})
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("elasticsearch index: %w", responseError(res))
	}
	return nil
}

func (e *Elastic) Get(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	res, err := e.do(ctx, "get", esapi.GetRequest{Index: e.index, DocumentID: username})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, users.ErrNotFound
	}
	var doc struct {
		Found  bool        `json:"found"`
		Source models.User `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("elasticsearch get: decode: %w", err)
	}
	if !doc.Found {
		return nil, users.ErrNotFound
	}
	return &doc.Source, nil
}

func (e *Elastic) UpdateEmail(ctx context.Context, username, email string) error {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{
		"doc": map[string]string{"email": email},
	})
	if err != nil {
		return err
	}
	res, err := e.do(ctx, "update", esapi.UpdateRequest{
		Index:      e.index,
		DocumentID: username,
		Body:       bytes.NewReader(body),
		Refresh:    e.refresh,
	})
	if err != nil {
		return err
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return users.ErrNotFound
	}
	return nil
}

func (e *Elastic) Delete(ctx context.Context, username string) error {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	res, err := e.do(ctx, "delete", esapi.DeleteRequest{
		Index:      e.index,
		DocumentID: username,
		Refresh:    e.refresh,
	})
	if err != nil {
		return err
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return users.ErrNotFound
	}
	return nil
}

type searchHits struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// search runs a query body and returns the hits. A missing index yields none.
func (e *Elastic) search(ctx context.Context, op string, query map[string]interface{}) (*searchHits, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	res, err := e.do(ctx, op, esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	out := &searchHits{}
	if res.StatusCode == http.StatusNotFound {
		return out, nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("elasticsearch %s: decode: %w", op, err)
	}
	return out, nil
}

func (e *Elastic) List(ctx context.Context, limit int) ([]models.Hit, error) {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	res, err := e.search(ctx, "list", map[string]interface{}{
		"size":  limit,
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Hit, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		hit := models.Hit{ID: h.ID}
		if len(h.Source) > 0 {
			if err := json.Unmarshal(h.Source, &hit.Details); err != nil {
				return nil, fmt.Errorf("elasticsearch list: decode %s: %w", h.ID, err)
			}
		}
		out = append(out, hit)
	}
	return out, nil
}

func (e *Elastic) Suggest(ctx context.Context, text string, limit int) ([]string, error) {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	res, err := e.search(ctx, "suggest", map[string]interface{}{
		"size":    limit,
		"_source": []string{"username"},
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"username": map[string]interface{}{
					"query":    text,
					"analyzer": SearchAnalyzerName,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		var src struct {
			Username string `json:"username"`
		}
		if len(h.Source) > 0 {
			if err := json.Unmarshal(h.Source, &src); err != nil {
				return nil, fmt.Errorf("elasticsearch suggest: decode %s: %w", h.ID, err)
			}
		}
		if src.Username == "" {
			src.Username = h.ID
		}
		names = append(names, src.Username)
	}
	return names, nil
}

func (e *Elastic) Ping(ctx context.Context) error {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	res, err := e.do(ctx, "info", esapi.InfoRequest{})
	if err != nil {
		return err
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("elasticsearch info: %w", responseError(res))
	}
	return nil
}
