package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/okleinschmidt/pyadm/pkg/match"
)

func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	return out, c.do(ctx, "info", esapi.InfoRequest{}, &out)
}

func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	return out, c.do(ctx, "cluster health", esapi.ClusterHealthRequest{}, &out)
}

// Indices lists the user indices (names starting with "." are hidden),
// sorted by name.
func (c *Client) Indices(ctx context.Context) ([]map[string]any, error) {
	var rows []map[string]any
	req := esapi.CatIndicesRequest{Format: "json"}
	if err := c.do(ctx, "cat indices", req, &rows); err != nil {
		return nil, err
	}
	return VisibleIndices(rows), nil
}

// VisibleIndices drops hidden indices and sorts the rest by name.
func VisibleIndices(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		if name := IndexName(r); name != "" && !strings.HasPrefix(name, ".") {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return IndexName(out[i]) < IndexName(out[j]) })
	return out
}

// LimitIndices reverses the sorted list and keeps the first n, so the
// newest date-suffixed names come first. n <= 0 keeps everything.
func LimitIndices(rows []map[string]any, n int) []map[string]any {
	if n <= 0 {
		return rows
	}
	out := make([]map[string]any, 0, len(rows))
	for i := len(rows) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, rows[i])
	}
	return out
}

func IndexName(row map[string]any) string {
	s, _ := row["index"].(string)
	return s
}

// Matching returns the visible indices selected by pattern. A pattern
// without `*` gets one appended.
func (c *Client) Matching(ctx context.Context, pattern string) ([]map[string]any, error) {
	rows, err := c.Indices(ctx)
	if err != nil {
		return nil, err
	}
	re := match.ToRegex(match.EnsureWildcard(pattern))
	var out []map[string]any
	for _, r := range rows {
		if re.MatchString(IndexName(r)) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, match.EnsureWildcard(pattern))
	}
	return out, nil
}

func (c *Client) CreateIndex(ctx context.Context, name string, shards, replicas int) (map[string]any, error) {
	settings := map[string]any{}
	if shards > 0 {
		settings["number_of_shards"] = shards
	}
	if replicas >= 0 {
		settings["number_of_replicas"] = replicas
	}
	body, err := jsonBody(map[string]any{"settings": settings})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, c.do(ctx, "create index", esapi.IndicesCreateRequest{Index: name, Body: body}, &out)
}

func (c *Client) DeleteIndex(ctx context.Context, name string) (map[string]any, error) {
	var out map[string]any
	return out, c.do(ctx, "delete index", esapi.IndicesDeleteRequest{Index: []string{name}}, &out)
}

func (c *Client) Mapping(ctx context.Context, index string) (map[string]any, error) {
	var out map[string]any
	return out, c.do(ctx, "get mapping", esapi.IndicesGetMappingRequest{Index: []string{index}}, &out)
}

func (c *Client) Settings(ctx context.Context, index string) (map[string]any, error) {
	var out map[string]any
	return out, c.do(ctx, "get settings", esapi.IndicesGetSettingsRequest{Index: []string{index}}, &out)
}

// Aliases returns the aliases of index, or of every index when empty.
func (c *Client) Aliases(ctx context.Context, index string) (map[string]any, error) {
	req := esapi.IndicesGetAliasRequest{}
	if index != "" {
		req.Index = []string{index}
	}
	var out map[string]any
	return out, c.do(ctx, "get aliases", req, &out)
}

func (c *Client) UpdateSettings(ctx context.Context, index string, settings map[string]any) (map[string]any, error) {
	body, err := jsonBody(map[string]any{"index": settings})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	req := esapi.IndicesPutSettingsRequest{Index: []string{index}, Body: body}
	return out, c.do(ctx, "update settings", req, &out)
}

// Search runs a query_string query, or match_all when query is empty.
func (c *Client) Search(ctx context.Context, index, query string, size int) (map[string]any, error) {
	q := map[string]any{"match_all": map[string]any{}}
	if query != "" {
		q = map[string]any{"query_string": map[string]any{"query": query}}
	}
	body, err := jsonBody(map[string]any{"query": q})
	if err != nil {
		return nil, err
	}
	req := esapi.SearchRequest{Index: []string{index}, Body: body}
	if size > 0 {
		req.Size = &size
	}
	var out map[string]any
	return out, c.do(ctx, "search", req, &out)
}

// Hits pulls the _source documents out of a search response.
func Hits(res map[string]any) []map[string]any {
	outer, _ := res["hits"].(map[string]any)
	list, _ := outer["hits"].([]any)
	docs := make([]map[string]any, 0, len(list))
	for _, h := range list {
		hit, _ := h.(map[string]any)
		src, _ := hit["_source"].(map[string]any)
		if src == nil {
			continue
		}
		docs = append(docs, src)
	}
	return docs
}

// Reindex copies source into dest and waits for the task to finish.
func (c *Client) Reindex(ctx context.Context, source, dest string) (map[string]any, error) {
	body, err := jsonBody(map[string]any{
		"source": map[string]any{"index": source},
		"dest":   map[string]any{"index": dest},
	})
	if err != nil {
		return nil, err
	}
	wait := true
	var out map[string]any
	req := esapi.ReindexRequest{Body: body, WaitForCompletion: &wait}
	return out, c.do(ctx, "reindex", req, &out)
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
