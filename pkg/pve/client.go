package pve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/okleinschmidt/pyadm/pkg/runner"
)

var ErrNodeOffline = errors.New("node is offline")

type Client struct {
	api      API
	parallel int
}

// NewClient wraps api. parallel above 1 queries nodes concurrently when
// aggregating.
func NewClient(api API, parallel int) *Client {
	return &Client{api: api, parallel: parallel}
}

func (c *Client) Nodes(ctx context.Context) ([]Node, error) {
	var nodes []Node
	if err := c.api.Get(ctx, "/nodes", &nodes); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	slices.SortFunc(nodes, func(a, b Node) int { return strings.Compare(a.Node, b.Node) })
	return nodes, nil
}

// OnlineNodes returns the names of the online nodes in name order.
func (c *Client) OnlineNodes(ctx context.Context) ([]string, error) {
	nodes, err := c.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	var online, offline []string
	for _, n := range nodes {
		if n.Online() {
			online = append(online, n.Node)
		} else {
			offline = append(offline, n.Node)
		}
	}
	logger.Logger.Debug("cluster nodes", "online", online, "offline", offline)
	return online, nil
}

// requireOnline fails unless node exists and is online.
func (c *Client) requireOnline(ctx context.Context, node, action string) error {
	nodes, err := c.Nodes(ctx)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if n.Node != node {
			continue
		}
		if !n.Online() {
			return fmt.Errorf("%w: node '%s' is offline, cannot %s", ErrNodeOffline, node, action)
		}
		return nil
	}
	return fmt.Errorf("%w: node '%s' not found in cluster", ErrNotFound, node)
}

func (c *Client) NodeStatus(ctx context.Context, node string) (map[string]any, error) {
	var out map[string]any
	if err := c.api.Get(ctx, "/nodes/"+node+"/status", &out); err != nil {
		return nil, fmt.Errorf("status of node %s: %w", node, err)
	}
	return out, nil
}

func (c *Client) Tasks(ctx context.Context, node string, limit int) ([]Task, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/nodes/" + node + "/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var tasks []Task
	if err := c.api.Get(ctx, path, &tasks); err != nil {
		return nil, fmt.Errorf("tasks of node %s: %w", node, err)
	}
	return tasks, nil
}

// Guests lists VMs or containers. With node set only that node is asked
// and it must be online. Otherwise every online node is asked; nodes that
// fail are logged and skipped, and the call fails only when all of them
// failed. The result keeps node order.
func (c *Client) Guests(ctx context.Context, kind Kind, node string) ([]Guest, error) {
	if node != "" {
		if err := c.requireOnline(ctx, node, "list "+kind.Label+"s"); err != nil {
			return nil, err
		}
		return c.nodeGuests(ctx, kind, node)
	}

	nodes, err := c.OnlineNodes(ctx)
	if err != nil {
		return nil, err
	}
	results := runner.Ordered(ctx, nodes, c.parallel, func(ctx context.Context, n string) ([]Guest, error) {
		return c.nodeGuests(ctx, kind, n)
	})
	perNode, err := runner.Collect(results, kind.Label+" listings", func(n string) string { return n })
	if err != nil {
		return nil, err
	}
	var all []Guest
	for _, g := range perNode {
		all = append(all, g...)
	}
	return all, nil
}

func (c *Client) nodeGuests(ctx context.Context, kind Kind, node string) ([]Guest, error) {
	var guests []Guest
	if err := c.api.Get(ctx, fmt.Sprintf("/nodes/%s/%s", node, kind.Path), &guests); err != nil {
		return nil, fmt.Errorf("%ss on node %s: %w", kind.Label, node, err)
	}
	for i := range guests {
		guests[i].Node = node
	}
	slices.SortFunc(guests, func(a, b Guest) int { return cmp.Compare(a.VMID, b.VMID) })
	return guests, nil
}

// VMs lists virtual machines; templates are left out unless asked for.
func (c *Client) VMs(ctx context.Context, node string, templates bool) ([]Guest, error) {
	guests, err := c.Guests(ctx, KindVM, node)
	if err != nil {
		return nil, err
	}
	if templates {
		return guests, nil
	}
	return slices.DeleteFunc(guests, func(g Guest) bool { return bool(g.Template) }), nil
}

// VMTemplates lists only the VM templates.
func (c *Client) VMTemplates(ctx context.Context, node string) ([]Guest, error) {
	guests, err := c.Guests(ctx, KindVM, node)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(guests, func(g Guest) bool { return !bool(g.Template) }), nil
}

func (c *Client) Containers(ctx context.Context, node string) ([]Guest, error) {
	return c.Guests(ctx, KindContainer, node)
}

// Lister adapts Guests for Resolve.
func (c *Client) Lister(kind Kind) Lister {
	return func(ctx context.Context) ([]Guest, error) {
		return c.Guests(ctx, kind, "")
	}
}

// Resolve finds the VMID and node for ref.
func (c *Client) Resolve(ctx context.Context, kind Kind, ref ResourceRef, node string) (uint64, string, error) {
	return Resolve(ctx, c.Lister(kind), ref, node, kind)
}

func (c *Client) GuestStatus(ctx context.Context, kind Kind, node string, id uint64) (map[string]any, error) {
	var out map[string]any
	path := fmt.Sprintf("/nodes/%s/%s/%d/status/current", node, kind.Path, id)
	if err := c.api.Get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("status of %s %d: %w", kind.Label, id, err)
	}
	return out, nil
}

// Power runs start, stop or shutdown and returns the task UPID.
func (c *Client) Power(ctx context.Context, kind Kind, node string, id uint64, action string) (string, error) {
	switch action {
	case "start", "stop", "shutdown":
	default:
		return "", fmt.Errorf("unknown power action %q", action)
	}
	if err := c.requireOnline(ctx, node, action+" "+kind.Label); err != nil {
		return "", err
	}
	var upid string
	path := fmt.Sprintf("/nodes/%s/%s/%d/status/%s", node, kind.Path, id, action)
	if err := c.api.Post(ctx, path, nil, &upid); err != nil {
		return "", fmt.Errorf("%s %s %d: %w", action, kind.Label, id, err)
	}
	return upid, nil
}

// NextID asks the cluster for a free VMID. When that fails the lowest free
// ID from 100 upward is picked from the current listings.
func (c *Client) NextID(ctx context.Context) (uint64, error) {
	var next VMID
	err := c.api.Get(ctx, "/cluster/nextid", &next)
	if err == nil && next > 0 {
		return uint64(next), nil
	}
	logger.Logger.Warn("cluster/nextid failed, scanning guests", "error", err)

	used := map[uint64]bool{}
	for _, kind := range []Kind{KindVM, KindContainer} {
		guests, err := c.Guests(ctx, kind, "")
		if err != nil {
			return 0, fmt.Errorf("find free VMID: %w", err)
		}
		for _, g := range guests {
			used[uint64(g.VMID)] = true
		}
	}
	id := uint64(100)
	for used[id] {
		id++
	}
	return id, nil
}
