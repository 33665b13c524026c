package pve

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// VMID accepts both the numeric and the quoted form; the lxc listing sends
// strings.
type VMID uint64

func (v *VMID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("vmid %q: %w", b, err)
	}
	*v = VMID(n)
	return nil
}

// Flag is a PVE boolean: 0/1, "0"/"1" or true/false.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.Trim(b, `"`)) {
	case "1", "true":
		*f = true
	default:
		*f = false
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

type Node struct {
	Node    string  `json:"node"`
	Status  string  `json:"status"`
	Uptime  uint64  `json:"uptime,omitempty"`
	CPU     float64 `json:"cpu,omitempty"`
	MaxCPU  int     `json:"maxcpu,omitempty"`
	Mem     uint64  `json:"mem,omitempty"`
	MaxMem  uint64  `json:"maxmem,omitempty"`
	MaxDisk uint64  `json:"maxdisk,omitempty"`
}

func (n Node) Online() bool {
	return n.Status == "online"
}

// Guest is a VM or container as the node listings return it.
type Guest struct {
	VMID     VMID    `json:"vmid"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Node     string  `json:"node"`
	CPU      float64 `json:"cpu"`
	CPUs     int     `json:"cpus"`
	MaxMem   uint64  `json:"maxmem"`
	MaxDisk  uint64  `json:"maxdisk,omitempty"`
	Uptime   uint64  `json:"uptime"`
	Template Flag    `json:"template,omitempty"`
}

type Task struct {
	UPID      string `json:"upid"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	StartTime int64  `json:"starttime"`
	EndTime   int64  `json:"endtime"`
	ID        string `json:"id"`
	User      string `json:"user"`
}

// Kind tells VMs and containers apart in paths and messages.
type Kind struct {
	Path  string
	Label string
}

var (
	KindVM        = Kind{Path: "qemu", Label: "VM"}
	KindContainer = Kind{Path: "lxc", Label: "container"}
)

const (
	gib = 1 << 30
	mib = 1 << 20
)

func GB(b uint64) string {
	return fmt.Sprintf("%.2f GB", float64(b)/gib)
}

func MB(b uint64) string {
	return fmt.Sprintf("%.0f MB", float64(b)/mib)
}

func Hours(seconds uint64) string {
	return fmt.Sprintf("%.2f hours", float64(seconds)/3600)
}

func YesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Timestamp renders a unix time in local time; zero stays empty.
func Timestamp(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).Format(time.DateTime)
}

// Row is the table form of a guest. VM memory shows in GB, container
// memory in MB.
func (g Guest) Row(kind Kind) map[string]any {
	mem := GB(g.MaxMem)
	if kind == KindContainer {
		mem = MB(g.MaxMem)
	}
	return map[string]any{
		"vmid":   uint64(g.VMID),
		"name":   g.Name,
		"status": g.Status,
		"node":   g.Node,
		"cpus":   g.CPUs,
		"maxmem": mem,
	}
}

func (n Node) Row() map[string]any {
	row := map[string]any{"node": n.Node, "status": n.Status, "uptime": "", "cpu": "", "maxmem": "", "maxdisk": ""}
	if n.Online() {
		row["uptime"] = Hours(n.Uptime)
		row["cpu"] = fmt.Sprintf("%.2f%%", n.CPU*100)
		row["maxmem"] = GB(n.MaxMem)
		row["maxdisk"] = GB(n.MaxDisk)
	}
	return row
}

func (t Task) Row() map[string]any {
	return map[string]any{
		"upid":      t.UPID,
		"type":      t.Type,
		"status":    t.Status,
		"starttime": Timestamp(t.StartTime),
		"endtime":   Timestamp(t.EndTime),
		"id":        t.ID,
	}
}
