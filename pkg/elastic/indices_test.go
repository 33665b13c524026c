package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCluster answers the handful of endpoints the client uses.
type fakeCluster struct {
	mu       sync.Mutex
	indices  []map[string]any
	requests []string
	bodies   map[string]string
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		if f.bodies == nil {
			f.bodies = map[string]string{}
		}
		f.bodies[r.Method+" "+r.URL.Path] = string(b)
	}

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"cluster_name": "test",
			"version":      map[string]any{"number": "8.11.0"},
		})
	case r.URL.Path == "/_cat/indices":
		_ = json.NewEncoder(w).Encode(f.indices)
	case r.URL.Path == "/_cluster/health":
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "green", "number_of_nodes": 3})
	case r.URL.Path == "/_reindex":
		_ = json.NewEncoder(w).Encode(map[string]any{"total": 5, "created": 5})
	case r.Method == http.MethodDelete && r.URL.Path == "/missing":
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"index_not_found_exception","reason":"no such index [missing]"},"status":404}`)
	case r.Method == http.MethodDelete:
		_ = json.NewEncoder(w).Encode(map[string]any{"acknowledged": true})
	case r.Method == http.MethodPut:
		_ = json.NewEncoder(w).Encode(map[string]any{"acknowledged": true, "index": r.URL.Path[1:]})
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"unexpected request"}`)
	}
}

func newTestClient(t *testing.T, f *fakeCluster) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(&config.ElasticConfig{Section: "ELASTIC", URL: srv.URL, Engine: EngineElasticsearch, Timeout: 5, VerifyCerts: true})
	require.NoError(t, err)
	return c
}

func sampleIndices() []map[string]any {
	return []map[string]any{
		{"index": "rsyslog-2023.07.02", "uuid": "u2", "health": "green"},
		{"index": ".kibana", "uuid": "k", "health": "green"},
		{"index": "rsyslog-2022.12.31", "uuid": "u0", "health": "yellow"},
		{"index": "rsyslog-2023.07.01", "uuid": "u1", "health": "green"},
	}
}

func TestIndicesSortedAndVisible(t *testing.T) {
	c := newTestClient(t, &fakeCluster{indices: sampleIndices()})
	rows, err := c.Indices(context.Background())
	require.NoError(t, err)

	var names []string
	for _, r := range rows {
		names = append(names, IndexName(r))
	}
	assert.Equal(t, []string{"rsyslog-2022.12.31", "rsyslog-2023.07.01", "rsyslog-2023.07.02"}, names)
}

func TestLimitIndices(t *testing.T) {
	rows := VisibleIndices(sampleIndices())
	got := LimitIndices(rows, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "rsyslog-2023.07.02", IndexName(got[0]))
	assert.Equal(t, "rsyslog-2023.07.01", IndexName(got[1]))
	assert.Len(t, LimitIndices(rows, 0), 3)
}

func TestMatching(t *testing.T) {
	c := newTestClient(t, &fakeCluster{indices: sampleIndices()})

	rows, err := c.Matching(context.Background(), "rsyslog-2023")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "rsyslog-2023.07.01", IndexName(rows[0]))

	_, err = c.Matching(context.Background(), "nginx-")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestInfoAndHealth(t *testing.T) {
	c := newTestClient(t, &fakeCluster{})
	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", info["cluster_name"])

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "green", health["status"])
}

func TestReindexBody(t *testing.T) {
	f := &fakeCluster{}
	c := newTestClient(t, f)
	_, err := c.Reindex(context.Background(), "logs-1", "logs-1-reindex")
	require.NoError(t, err)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(f.bodies["POST /_reindex"]), &body))
	assert.Equal(t, "logs-1", body["source"]["index"])
	assert.Equal(t, "logs-1-reindex", body["dest"]["index"])
}

func TestDeleteMissingIndex(t *testing.T) {
	c := newTestClient(t, &fakeCluster{})
	_, err := c.DeleteIndex(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "index_not_found_exception", apiErr.Type)
}

func TestCreateIndexSettings(t *testing.T) {
	f := &fakeCluster{}
	c := newTestClient(t, f)
	_, err := c.CreateIndex(context.Background(), "new-index", 3, -1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"settings":{"number_of_shards":3}}`, f.bodies["PUT /new-index"])
}

func TestHits(t *testing.T) {
	res := map[string]any{"hits": map[string]any{"hits": []any{
		map[string]any{"_id": "1", "_source": map[string]any{"msg": "a"}},
		map[string]any{"_id": "2"},
	}}}
	assert.Equal(t, []map[string]any{{"msg": "a"}}, Hits(res))
	assert.Empty(t, Hits(map[string]any{}))
}
