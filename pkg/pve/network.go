package pve

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// BridgeSpec describes a new Linux bridge.
type BridgeSpec struct {
	Name      string
	Ports     string
	CIDR      string
	Gateway   string
	Comment   string
	Autostart bool
	MTU       int
}

func (s BridgeSpec) Params() map[string]any {
	p := map[string]any{"iface": s.Name, "type": "bridge", "autostart": 0}
	if s.Autostart {
		p["autostart"] = 1
	}
	for k, v := range map[string]string{
		"bridge_ports": s.Ports,
		"cidr":         s.CIDR,
		"gateway":      s.Gateway,
		"comments":     s.Comment,
	} {
		if v != "" {
			p[k] = v
		}
	}
	if s.MTU > 0 {
		p["mtu"] = s.MTU
	}
	return p
}

// Interfaces lists the network interfaces of a node sorted by name.
func (c *Client) Interfaces(ctx context.Context, node string) ([]map[string]any, error) {
	if err := c.requireOnline(ctx, node, "list interfaces"); err != nil {
		return nil, err
	}
	var ifaces []map[string]any
	if err := c.api.Get(ctx, "/nodes/"+node+"/network", &ifaces); err != nil {
		return nil, fmt.Errorf("interfaces on node %s: %w", node, err)
	}
	for _, i := range ifaces {
		i["node"] = node
	}
	slices.SortFunc(ifaces, func(a, b map[string]any) int {
		return strings.Compare(fmt.Sprint(a["iface"]), fmt.Sprint(b["iface"]))
	})
	return ifaces, nil
}

func (c *Client) Bridges(ctx context.Context, node string) ([]map[string]any, error) {
	ifaces, err := c.Interfaces(ctx, node)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(ifaces, func(i map[string]any) bool { return i["type"] != "bridge" }), nil
}

func (c *Client) Interface(ctx context.Context, node, iface string) (map[string]any, error) {
	var out map[string]any
	if err := c.api.Get(ctx, fmt.Sprintf("/nodes/%s/network/%s", node, iface), &out); err != nil {
		return nil, fmt.Errorf("interface %s on node %s: %w", iface, node, err)
	}
	return out, nil
}

// CreateBridge stages a bridge; ApplyNetwork activates it.
func (c *Client) CreateBridge(ctx context.Context, node string, spec BridgeSpec) error {
	if err := c.requireOnline(ctx, node, "create bridge"); err != nil {
		return err
	}
	if err := c.api.Post(ctx, "/nodes/"+node+"/network", spec.Params(), nil); err != nil {
		return fmt.Errorf("create bridge %s on node %s: %w", spec.Name, node, err)
	}
	return nil
}

func (c *Client) DeleteInterface(ctx context.Context, node, iface string) error {
	if err := c.requireOnline(ctx, node, "delete interface"); err != nil {
		return err
	}
	if err := c.api.Delete(ctx, fmt.Sprintf("/nodes/%s/network/%s", node, iface), nil); err != nil {
		return fmt.Errorf("delete interface %s on node %s: %w", iface, node, err)
	}
	return nil
}

// UpdateInterface stages new settings for iface. PVE wants the interface
// type on every update, so it is read first when not given.
func (c *Client) UpdateInterface(ctx context.Context, node, iface string, settings map[string]any) error {
	if err := c.requireOnline(ctx, node, "update interface"); err != nil {
		return err
	}
	body := make(map[string]any, len(settings)+1)
	for k, v := range settings {
		body[k] = v
	}
	if _, ok := body["type"]; !ok {
		current, err := c.Interface(ctx, node, iface)
		if err != nil {
			return err
		}
		body["type"] = current["type"]
	}
	if err := c.api.Put(ctx, fmt.Sprintf("/nodes/%s/network/%s", node, iface), body, nil); err != nil {
		return fmt.Errorf("update interface %s on node %s: %w", iface, node, err)
	}
	return nil
}

// ApplyNetwork reloads the staged network configuration and returns the
// task UPID.
func (c *Client) ApplyNetwork(ctx context.Context, node string) (string, error) {
	if err := c.requireOnline(ctx, node, "apply network changes"); err != nil {
		return "", err
	}
	var upid string
	if err := c.api.Put(ctx, "/nodes/"+node+"/network", nil, &upid); err != nil {
		return "", fmt.Errorf("apply network on node %s: %w", node, err)
	}
	return upid, nil
}

// InterfaceRow fills the listing columns, showing active as Yes/No.
func InterfaceRow(i map[string]any, keys []string) map[string]any {
	row := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok := i[k]
		switch {
		case k == "active":
			n, _ := number(v)
			row[k] = YesNo(n == 1 || v == true)
		case !ok || v == nil:
			row[k] = ""
		default:
			row[k] = v
		}
	}
	return row
}
