package pve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Offline is an in-memory cluster answering the same paths as the real
// API: node1 and node2 online, node3 offline, a few guests and templates.
// Writes change the in-memory state and return fake UPIDs.
type Offline struct {
	mu     sync.Mutex
	now    func() time.Time
	nodes  []map[string]any
	guests map[string][]map[string]any // "qemu"/"lxc" -> guests with "node"
	ifaces map[string][]map[string]any
	fail   map[string]error
}

func NewOffline() *Offline {
	o := &Offline{now: time.Now, fail: map[string]error{}}
	o.nodes = []map[string]any{
		{"node": "node1", "status": "online", "uptime": 1234567, "cpu": 0.05, "maxcpu": 8,
			"mem": 8 * gib, "maxmem": 16 * gib, "maxdisk": 500 * gib},
		{"node": "node2", "status": "online", "uptime": 2345678, "cpu": 0.10, "maxcpu": 16,
			"mem": 16 * gib, "maxmem": 32 * gib, "maxdisk": 1000 * gib},
		{"node": "node3", "status": "offline"},
	}
	o.guests = map[string][]map[string]any{
		"qemu": {
			{"vmid": 100, "name": "sample-vm1", "status": "running", "node": "node1", "cpus": 2, "cpu": 0.03, "maxmem": 4 * gib, "uptime": 86400},
			{"vmid": 101, "name": "sample-vm2", "status": "stopped", "node": "node1", "cpus": 4, "maxmem": 8 * gib},
			{"vmid": 102, "name": "sample-vm3", "status": "running", "node": "node2", "cpus": 8, "cpu": 0.2, "maxmem": 16 * gib, "uptime": 86400},
			{"vmid": 9000, "name": "debian-12-template", "status": "stopped", "node": "node1", "cpus": 2, "maxmem": 2 * gib, "template": 1},
		},
		"lxc": {
			{"vmid": "200", "name": "sample-ct1", "status": "running", "node": "node1", "cpus": 2, "maxmem": 2 * gib, "uptime": 43200},
			{"vmid": "201", "name": "sample-ct2", "status": "stopped", "node": "node1", "cpus": 2, "maxmem": 4 * gib},
			{"vmid": "9100", "name": "alpine-template", "status": "stopped", "node": "node2", "cpus": 1, "maxmem": 512 * mib, "template": 1},
		},
	}
	o.ifaces = map[string][]map[string]any{
		"node1": sampleInterfaces(),
		"node2": sampleInterfaces(),
	}
	return o
}

func sampleInterfaces() []map[string]any {
	return []map[string]any{
		{"iface": "eno1", "type": "eth", "active": 1, "method": "manual"},
		{"iface": "vmbr0", "type": "bridge", "active": 1, "method": "static", "autostart": 1,
			"cidr": "192.168.1.10/24", "address": "192.168.1.10", "netmask": "24",
			"gateway": "192.168.1.1", "bridge_ports": "eno1", "comments": "LAN"},
	}
}

// FailNode makes every request below /nodes/<node>/ fail with err.
func (o *Offline) FailNode(node string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fail[node] = err
}

func (o *Offline) Get(_ context.Context, path string, v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, err := o.get(path)
	if err != nil {
		return err
	}
	return assign(res, v)
}

func (o *Offline) Post(_ context.Context, path string, data any, v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, err := o.write("POST", path, data)
	if err != nil {
		return err
	}
	return assign(res, v)
}

func (o *Offline) Put(_ context.Context, path string, data any, v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, err := o.write("PUT", path, data)
	if err != nil {
		return err
	}
	return assign(res, v)
}

func (o *Offline) Delete(_ context.Context, path string, v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, err := o.write("DELETE", path, nil)
	if err != nil {
		return err
	}
	return assign(res, v)
}

// assign copies res into v through JSON, like a response body would.
func assign(res any, v any) error {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func splitPath(path string) ([]string, url.Values) {
	p, rawQuery, _ := strings.Cut(path, "?")
	q, _ := url.ParseQuery(rawQuery)
	return strings.Split(strings.Trim(p, "/"), "/"), q
}

func (o *Offline) node(name string) (map[string]any, error) {
	if err := o.fail[name]; err != nil {
		return nil, err
	}
	for _, n := range o.nodes {
		if n["node"] == name {
			if n["status"] != "online" {
				return nil, fmt.Errorf("node '%s' is offline (595)", name)
			}
			return n, nil
		}
	}
	return nil, fmt.Errorf("no such node '%s'", name)
}

func (o *Offline) get(path string) (any, error) {
	parts, q := splitPath(path)
	switch {
	case path == "/nodes":
		return o.nodes, nil
	case path == "/cluster/nextid":
		return strconv.FormatUint(o.nextID(), 10), nil
	case path == "/storage":
		return []map[string]any{
			{"storage": "local", "type": "dir", "content": "iso,vztmpl,backup"},
			{"storage": "local-lvm", "type": "lvmthin", "content": "images,rootdir"},
			{"storage": "cephfs", "type": "cephfs", "content": "images"},
		}, nil
	case len(parts) < 3 || parts[0] != "nodes":
		return nil, fmt.Errorf("offline: unsupported path %s", path)
	}

	n, err := o.node(parts[1])
	if err != nil {
		return nil, err
	}
	name := parts[1]
	switch rest := strings.Join(parts[2:], "/"); {
	case rest == "status":
		return map[string]any{
			"uptime":     n["uptime"],
			"cpu":        n["cpu"],
			"loadavg":    []string{"0.01", "0.05", "0.10"},
			"memory":     map[string]any{"total": n["maxmem"], "used": n["mem"], "free": n["maxmem"].(int) - n["mem"].(int)},
			"swap":       map[string]any{"total": 8 * gib, "used": gib},
			"pveversion": "pve-manager/8.2.4",
		}, nil
	case rest == "qemu" || rest == "lxc":
		var out []map[string]any
		for _, g := range o.guests[rest] {
			if g["node"] == name {
				out = append(out, g)
			}
		}
		return out, nil
	case len(parts) == 6 && parts[4] == "status" && parts[5] == "current":
		g := o.findGuest(parts[2], parts[3], name)
		if g == nil {
			return nil, fmt.Errorf("%s %s does not exist on %s", parts[2], parts[3], name)
		}
		return g, nil
	case rest == "tasks":
		now := o.now().Unix()
		tasks := []map[string]any{
			{"upid": fmt.Sprintf("UPID:%s:%d:qmstart:100:root@pam:", name, now-3600), "type": "qmstart",
				"status": "OK", "starttime": now - 3600, "endtime": now - 3500, "id": "100", "user": "root@pam"},
			{"upid": fmt.Sprintf("UPID:%s:%d:qmstop:101:root@pam:", name, now-7200), "type": "qmstop",
				"status": "OK", "starttime": now - 7200, "endtime": now - 7150, "id": "101", "user": "root@pam"},
		}
		if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit < len(tasks) {
			tasks = tasks[:limit]
		}
		return tasks, nil
	case rest == "storage":
		return []map[string]any{
			{"storage": "local", "type": "dir", "content": "iso,vztmpl,backup", "active": 1,
				"total": 100 * gib, "used": 20 * gib, "avail": 80 * gib},
			{"storage": "local-lvm", "type": "lvmthin", "content": "images,rootdir", "active": 1,
				"total": 400 * gib, "used": 80 * gib, "avail": 320 * gib},
		}, nil
	case len(parts) == 5 && parts[2] == "storage" && parts[4] == "content":
		switch q.Get("content") {
		case "vztmpl":
			return []map[string]any{
				{"volid": parts[3] + ":vztmpl/debian-12-standard_12.2-1_amd64.tar.zst", "format": "tzst", "size": 120 * mib},
				{"volid": parts[3] + ":vztmpl/alpine-3.19-default_20240207_amd64.tar.xz", "format": "txz", "size": 3 * mib},
			}, nil
		case "iso":
			return []map[string]any{
				{"volid": parts[3] + ":iso/debian-12.5.0-amd64-netinst.iso", "format": "iso", "size": 630 * mib},
			}, nil
		}
		return []map[string]any{}, nil
	case rest == "network":
		return o.ifaces[name], nil
	case len(parts) == 4 && parts[2] == "network":
		for _, i := range o.ifaces[name] {
			if i["iface"] == parts[3] {
				return i, nil
			}
		}
		return nil, fmt.Errorf("interface %s does not exist", parts[3])
	}
	return nil, fmt.Errorf("offline: unsupported path %s", path)
}

func (o *Offline) findGuest(kind, id, node string) map[string]any {
	for _, g := range o.guests[kind] {
		if fmt.Sprint(g["vmid"]) == id && g["node"] == node {
			return g
		}
	}
	return nil
}

func (o *Offline) nextID() uint64 {
	used := map[string]bool{}
	for _, list := range o.guests {
		for _, g := range list {
			used[fmt.Sprint(g["vmid"])] = true
		}
	}
	id := uint64(100)
	for used[strconv.FormatUint(id, 10)] {
		id++
	}
	return id
}

func (o *Offline) upid(node, kind, id string) string {
	return fmt.Sprintf("UPID:%s:%08X:%s:%s:root@pam:", node, o.now().Unix(), kind, id)
}

func (o *Offline) write(method, path string, data any) (any, error) {
	parts, _ := splitPath(path)
	if len(parts) < 3 || parts[0] != "nodes" {
		return nil, fmt.Errorf("offline: unsupported %s %s", method, path)
	}
	name := parts[1]
	if _, err := o.node(name); err != nil {
		return nil, err
	}
	params, _ := data.(map[string]any)

	switch {
	case method == "POST" && len(parts) == 6 && parts[4] == "status":
		g := o.findGuest(parts[2], parts[3], name)
		if g == nil {
			return nil, fmt.Errorf("%s %s does not exist on %s", parts[2], parts[3], name)
		}
		switch parts[5] {
		case "start":
			g["status"] = "running"
		case "stop", "shutdown":
			g["status"] = "stopped"
		}
		return o.upid(name, parts[2]+parts[5], parts[3]), nil
	case method == "POST" && len(parts) == 3 && (parts[2] == "qemu" || parts[2] == "lxc"):
		g := map[string]any{"vmid": params["vmid"], "status": "stopped", "node": name,
			"cpus": params["cores"], "maxmem": toInt(params["memory"]) * mib}
		if parts[2] == "qemu" {
			g["name"] = params["name"]
		} else {
			g["name"] = params["hostname"]
		}
		o.guests[parts[2]] = append(o.guests[parts[2]], g)
		return o.upid(name, parts[2]+"create", fmt.Sprint(params["vmid"])), nil
	case method == "POST" && len(parts) == 5 && parts[4] == "clone":
		src := o.findGuest("qemu", parts[3], name)
		if src == nil {
			return nil, fmt.Errorf("VM %s does not exist on %s", parts[3], name)
		}
		target := name
		if t, ok := params["target"].(string); ok && t != "" {
			target = t
		}
		o.guests["qemu"] = append(o.guests["qemu"], map[string]any{
			"vmid": params["newid"], "name": params["name"], "status": "stopped", "node": target,
			"cpus": src["cpus"], "maxmem": src["maxmem"],
		})
		return o.upid(name, "qmclone", parts[3]), nil
	case method == "POST" && len(parts) == 3 && parts[2] == "network":
		iface := map[string]any{"active": 0}
		for k, v := range params {
			iface[k] = v
		}
		o.ifaces[name] = append(o.ifaces[name], iface)
		return nil, nil
	case method == "PUT" && len(parts) == 3 && parts[2] == "network":
		return o.upid(name, "srvreload", "networking"), nil
	case method == "PUT" && len(parts) == 4 && parts[2] == "network":
		for _, i := range o.ifaces[name] {
			if i["iface"] == parts[3] {
				for k, v := range params {
					i[k] = v
				}
				return nil, nil
			}
		}
		return nil, fmt.Errorf("interface %s does not exist", parts[3])
	case method == "DELETE" && len(parts) == 4 && parts[2] == "network":
		list := o.ifaces[name]
		for idx, i := range list {
			if i["iface"] == parts[3] {
				o.ifaces[name] = append(list[:idx], list[idx+1:]...)
				return nil, nil
			}
		}
		return nil, fmt.Errorf("interface %s does not exist", parts[3])
	}
	return nil, fmt.Errorf("offline: unsupported %s %s", method, path)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
