package pve

import (
	"context"
	"fmt"
	"strings"

	"github.com/okleinschmidt/pyadm/pkg/logger"
)

// VMSpec describes a new virtual machine. Zero VMID means pick the next
// free one.
type VMSpec struct {
	VMID      uint64
	Name      string
	MemoryMB  int
	Cores     int
	Storage   string
	Disk      string
	ISO       string
	NetModel  string
	NetBridge string
}

// Params is the request body for POST /nodes/{node}/qemu.
func (s VMSpec) Params() map[string]any {
	p := map[string]any{
		"vmid":    s.VMID,
		"name":    s.Name,
		"memory":  s.MemoryMB,
		"cores":   s.Cores,
		"sockets": 1,
		"ostype":  "l26",
		"net0":    fmt.Sprintf("%s,bridge=%s", s.NetModel, s.NetBridge),
	}
	if s.Disk != "" {
		p["scsi0"] = fmt.Sprintf("%s:%s", s.Storage, strings.TrimSuffix(strings.ToUpper(s.Disk), "G"))
		p["scsihw"] = "virtio-scsi-pci"
	}
	if s.ISO != "" {
		p["ide2"] = s.ISO + ",media=cdrom"
		p["boot"] = "order=ide2;scsi0"
	}
	return p
}

// ContainerSpec describes a new LXC container.
type ContainerSpec struct {
	VMID         uint64
	Hostname     string
	Template     string
	MemoryMB     int
	SwapMB       int
	Cores        int
	Storage      string
	Disk         string
	Password     string
	Net0         string
	Unprivileged bool
}

func (s ContainerSpec) Params() map[string]any {
	net0 := s.Net0
	if net0 == "" {
		net0 = "name=eth0,bridge=vmbr0,ip=dhcp"
	}
	unpriv := 0
	if s.Unprivileged {
		unpriv = 1
	}
	p := map[string]any{
		"vmid":         s.VMID,
		"hostname":     s.Hostname,
		"ostemplate":   s.Template,
		"memory":       s.MemoryMB,
		"swap":         s.SwapMB,
		"cores":        s.Cores,
		"rootfs":       fmt.Sprintf("%s:%s", s.Storage, strings.TrimSuffix(strings.ToUpper(s.Disk), "G")),
		"net0":         net0,
		"unprivileged": unpriv,
	}
	if s.Password != "" {
		p["password"] = s.Password
	}
	return p
}

// CloneSpec describes a clone of an existing VM or template.
type CloneSpec struct {
	NewID   uint64
	Name    string
	Target  string
	Storage string
	Full    bool
}

func (s CloneSpec) Params(sourceNode string) map[string]any {
	p := map[string]any{"newid": s.NewID, "name": s.Name, "full": 0}
	if s.Full {
		p["full"] = 1
	}
	if s.Target != "" && s.Target != sourceNode {
		p["target"] = s.Target
	}
	if s.Storage != "" {
		p["storage"] = s.Storage
	}
	return p
}

func (c *Client) CreateVM(ctx context.Context, node string, spec VMSpec) (string, error) {
	if err := c.requireOnline(ctx, node, "create VM"); err != nil {
		return "", err
	}
	var upid string
	if err := c.api.Post(ctx, "/nodes/"+node+"/qemu", spec.Params(), &upid); err != nil {
		return "", fmt.Errorf("create VM %s on %s: %w", spec.Name, node, err)
	}
	return upid, nil
}

func (c *Client) CreateContainer(ctx context.Context, node string, spec ContainerSpec) (string, error) {
	if err := c.requireOnline(ctx, node, "create container"); err != nil {
		return "", err
	}
	var upid string
	if err := c.api.Post(ctx, "/nodes/"+node+"/lxc", spec.Params(), &upid); err != nil {
		return "", fmt.Errorf("create container %s on %s: %w", spec.Hostname, node, err)
	}
	return upid, nil
}

func (c *Client) CloneVM(ctx context.Context, node string, id uint64, spec CloneSpec) (string, error) {
	if err := c.requireOnline(ctx, node, "clone VM"); err != nil {
		return "", err
	}
	var upid string
	path := fmt.Sprintf("/nodes/%s/qemu/%d/clone", node, id)
	if err := c.api.Post(ctx, path, spec.Params(node), &upid); err != nil {
		return "", fmt.Errorf("clone VM %d: %w", id, err)
	}
	return upid, nil
}

// StorageContent lists volumes of one content type (vztmpl, iso, ...) on
// the node, across every storage offering it. storage narrows the search.
func (c *Client) StorageContent(ctx context.Context, node, content, storage string) ([]map[string]any, error) {
	var storages []map[string]any
	if err := c.api.Get(ctx, "/nodes/"+node+"/storage", &storages); err != nil {
		return nil, fmt.Errorf("storage on node %s: %w", node, err)
	}
	var out []map[string]any
	for _, s := range storages {
		name, _ := s["storage"].(string)
		types, _ := s["content"].(string)
		if storage != "" && name != storage {
			continue
		}
		if !strings.Contains(types, content) {
			continue
		}
		var vols []map[string]any
		path := fmt.Sprintf("/nodes/%s/storage/%s/content?content=%s", node, name, content)
		if err := c.api.Get(ctx, path, &vols); err != nil {
			logger.Logger.Warn("skipping storage", "node", node, "storage", name, "error", err)
			continue
		}
		for _, v := range vols {
			v["storage"] = name
			out = append(out, v)
		}
	}
	return out, nil
}

// TemplateName strips "local:vztmpl/" from a template volid.
func TemplateName(volid string) string {
	if _, after, ok := strings.Cut(volid, ":vztmpl/"); ok {
		return after
	}
	return volid
}

// TemplateRow is the listing form of a template volume: short name and
// size in MB.
func TemplateRow(vol map[string]any, node string) map[string]any {
	volid, _ := vol["volid"].(string)
	row := map[string]any{
		"node":     node,
		"storage":  valueOr(vol["storage"], ""),
		"template": TemplateName(volid),
		"volid":    volid,
		"size":     "",
	}
	if n, ok := number(vol["size"]); ok {
		row["size"] = MB(uint64(n))
	}
	return row
}
