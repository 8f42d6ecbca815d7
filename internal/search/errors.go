package search

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ResponseError is a non-2xx answer from Elasticsearch.
type ResponseError struct {
	Status int
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Type, e.Reason)
}

// responseError reads res.Body and builds a ResponseError. The error field is
// either an object with type/reason or a bare string.
func responseError(res *esapi.Response) *ResponseError {
	rerr := &ResponseError{Status: res.StatusCode}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		rerr.Reason = err.Error()
		return rerr
	}
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		rerr.Reason = string(body)
		return rerr
	}
	var obj struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(env.Error, &obj); err == nil {
		rerr.Type, rerr.Reason = obj.Type, obj.Reason
		return rerr
	}
	var s string
	if err := json.Unmarshal(env.Error, &s); err == nil {
		rerr.Reason = s
		return rerr
	}
	rerr.Reason = string(env.Error)
	return rerr
}
