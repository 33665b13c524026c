package pve

import (
	"context"
	"fmt"

	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/okleinschmidt/pyadm/pkg/runner"
)

// Storage lists storages with usage. With node set the node's own view is
// returned. Otherwise the cluster definitions are merged with the usage
// reported by the first online node that has each storage; storages no
// node reports are tagged with node "cluster".
func (c *Client) Storage(ctx context.Context, node string) ([]map[string]any, error) {
	if node != "" {
		if err := c.requireOnline(ctx, node, "list storage"); err != nil {
			return nil, err
		}
		return c.nodeStorage(ctx, node)
	}

	var defs []map[string]any
	if err := c.api.Get(ctx, "/storage", &defs); err != nil {
		return nil, fmt.Errorf("list storage: %w", err)
	}
	nodes, err := c.OnlineNodes(ctx)
	if err != nil {
		return nil, err
	}
	results := runner.Ordered(ctx, nodes, c.parallel, c.nodeStorage)

	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		name, _ := def["storage"].(string)
		row := findStorage(results, name)
		if row == nil {
			row = map[string]any{"node": "cluster"}
		}
		for k, v := range def {
			if _, ok := row[k]; !ok {
				row[k] = v
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (c *Client) nodeStorage(ctx context.Context, node string) ([]map[string]any, error) {
	var rows []map[string]any
	if err := c.api.Get(ctx, "/nodes/"+node+"/storage", &rows); err != nil {
		return nil, fmt.Errorf("storage on node %s: %w", node, err)
	}
	for _, r := range rows {
		r["node"] = node
	}
	return rows, nil
}

func findStorage(results []runner.Result[string, []map[string]any], name string) map[string]any {
	for _, r := range results {
		if r.Error != nil {
			logger.Logger.Debug("no storage details from node", "node", r.Item, "error", r.Error)
			continue
		}
		for _, s := range r.Value {
			if s["storage"] == name {
				row := make(map[string]any, len(s))
				for k, v := range s {
					row[k] = v
				}
				return row
			}
		}
	}
	return nil
}

// StorageRow formats sizes in GB and active as Yes/No.
func StorageRow(s map[string]any) map[string]any {
	row := map[string]any{}
	for _, k := range []string{"storage", "type", "content", "node"} {
		row[k] = valueOr(s[k], "N/A")
	}
	row["active"] = "N/A"
	if v, ok := number(s["active"]); ok {
		row["active"] = YesNo(v == 1)
	}
	for _, k := range []string{"total", "used", "avail"} {
		row[k] = "N/A"
		if v, ok := number(s[k]); ok {
			row[k] = GB(uint64(v))
		}
	}
	return row
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func valueOr(v any, fallback string) any {
	if v == nil {
		return fallback
	}
	return v
}
