package elastic

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNoMatch is returned when a wildcard pattern selects no index.
	ErrNoMatch = errors.New("no index matches pattern")
)

// APIError is a non-2xx answer from the cluster.
type APIError struct {
	Op     string
	Status int
	Type   string
	Reason string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: HTTP %d: %s: %s", e.Op, e.Status, e.Type, e.Reason)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

func newAPIError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	e := &APIError{Op: op, Status: res.StatusCode}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Error) > 0 {
		var detail struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(envelope.Error, &detail) == nil && detail.Reason != "" {
			e.Type, e.Reason = detail.Type, detail.Reason
			return e
		}
		var text string
		if json.Unmarshal(envelope.Error, &text) == nil {
			e.Reason = text
			return e
		}
	}
	e.Reason = http.StatusText(res.StatusCode)
	return e
}
