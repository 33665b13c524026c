package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okleinschmidt/pyadm/pkg/elastic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type esStub struct {
	mu      sync.Mutex
	deleted []string
}

func (s *esStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/_cat/indices":
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"index": "logs-2024.01.02", "uuid": "u2", "health": "green", "status": "open", "docs.count": "20"},
			{"index": ".security-7", "uuid": "s", "health": "green", "status": "open"},
			{"index": "logs-2024.01.01", "uuid": "u1", "health": "yellow", "status": "open", "docs.count": "10"},
			{"index": "metrics", "uuid": "m", "health": "green", "status": "open"},
		})
	case r.Method == http.MethodDelete:
		s.deleted = append(s.deleted, strings.TrimPrefix(r.URL.Path, "/"))
		_ = json.NewEncoder(w).Encode(map[string]any{"acknowledged": true})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func elasticConfig(t *testing.T, stub *esStub) string {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return writeConfig(t, "[ELASTIC]\nhosts = "+srv.URL+"\ntimeout = 5\n")
}

func TestElasticIndicesJSON(t *testing.T) {
	path := elasticConfig(t, &esStub{})

	out, err := execute(t, "", "elastic", "--config", path, "indices", "--json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))

	var names []string
	for _, r := range rows {
		names = append(names, r["index"].(string))
	}
	assert.Equal(t, []string{"logs-2024.01.01", "logs-2024.01.02", "metrics"}, names)
	assert.Equal(t, "u1", rows[0]["uuid"])
}

func TestElasticIndicesLimit(t *testing.T) {
	path := elasticConfig(t, &esStub{})

	out, err := execute(t, "", "es", "--config", path, "indices", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "INDEX")
	assert.Contains(t, out, "metrics")
	assert.Contains(t, out, "logs-2024.01.02")
	assert.NotContains(t, out, "logs-2024.01.01")
}

func TestElasticDelete(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		input   string
		want    []string
		deleted []string
	}{
		{
			name: "dry run",
			args: []string{"logs", "--dry-run"},
			want: []string{"Would delete index logs-2024.01.01", "Would delete index logs-2024.01.02"},
		},
		{
			name:    "confirm each",
			args:    []string{"logs-*"},
			input:   "y\nn\n",
			want:    []string{"Index logs-2024.01.01 with UUID u1 deleted.", "Skipped logs-2024.01.02"},
			deleted: []string{"logs-2024.01.01"},
		},
		{
			name:    "force",
			args:    []string{"logs", "--force"},
			want:    []string{"Index logs-2024.01.02 with UUID u2 deleted."},
			deleted: []string{"logs-2024.01.01", "logs-2024.01.02"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &esStub{}
			path := elasticConfig(t, stub)
			args := append([]string{"elastic", "--config", path, "delete"}, tt.args...)
			out, err := execute(t, tt.input, args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			assert.Equal(t, tt.deleted, stub.deleted)
		})
	}
}

func TestElasticDeleteNoMatch(t *testing.T) {
	path := elasticConfig(t, &esStub{})
	_, err := execute(t, "", "elastic", "--config", path, "delete", "nothing", "--force")
	assert.ErrorIs(t, err, elastic.ErrNoMatch)
}

func TestElasticUnknownCluster(t *testing.T) {
	stub := &esStub{}
	path := elasticConfig(t, stub)
	// An unknown section falls back to the default one.
	out, err := execute(t, "", "elastic", "--config", path, "-c", "ELASTIC_NOPE", "indices", "-o", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "index,health,status,docs.count,store.size,pri,rep", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "logs-2024.01.01,yellow,open,10,"))
}
