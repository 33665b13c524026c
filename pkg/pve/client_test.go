package pve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vmids(guests []Guest) []uint64 {
	out := make([]uint64, len(guests))
	for i, g := range guests {
		out[i] = uint64(g.VMID)
	}
	return out
}

func TestNodes(t *testing.T) {
	c := NewClient(NewOffline(), 1)
	nodes, err := c.Nodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.False(t, nodes[2].Online())

	online, err := c.OnlineNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"node1", "node2"}, online)
}

func TestGuestsAcrossNodes(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		c := NewClient(NewOffline(), parallel)

		vms, err := c.VMs(context.Background(), "", false)
		require.NoError(t, err)
		assert.Equal(t, []uint64{100, 101, 102}, vmids(vms), "parallel=%d", parallel)
		assert.Equal(t, "node2", vms[2].Node)

		all, err := c.VMs(context.Background(), "", true)
		require.NoError(t, err)
		assert.Equal(t, []uint64{100, 101, 9000, 102}, vmids(all))

		cts, err := c.Containers(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, []uint64{200, 201, 9100}, vmids(cts))
	}
}

func TestGuestsSkipFailingNode(t *testing.T) {
	off := NewOffline()
	off.FailNode("node2", errors.New("connection refused"))
	c := NewClient(off, 2)

	vms, err := c.VMs(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 101}, vmids(vms))

	off.FailNode("node1", errors.New("timeout"))
	_, err = c.VMs(context.Background(), "", false)
	assert.Error(t, err)
}

func TestGuestsOnSingleNode(t *testing.T) {
	c := NewClient(NewOffline(), 1)

	vms, err := c.VMs(context.Background(), "node2", false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{102}, vmids(vms))

	_, err = c.VMs(context.Background(), "node3", false)
	assert.ErrorIs(t, err, ErrNodeOffline)

	_, err = c.VMs(context.Background(), "node9", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVMTemplates(t *testing.T) {
	c := NewClient(NewOffline(), 1)
	tpls, err := c.VMTemplates(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []uint64{9000}, vmids(tpls))
}

func TestResolveAgainstCluster(t *testing.T) {
	c := NewClient(NewOffline(), 1)
	id, node, err := c.Resolve(context.Background(), KindContainer, ParseRef("sample-ct2"), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(201), id)
	assert.Equal(t, "node1", node)
}

func TestPowerAndStatus(t *testing.T) {
	off := NewOffline()
	c := NewClient(off, 1)
	ctx := context.Background()

	upid, err := c.Power(ctx, KindVM, "node1", 101, "start")
	require.NoError(t, err)
	assert.Contains(t, upid, "UPID:node1:")

	st, err := c.GuestStatus(ctx, KindVM, "node1", 101)
	require.NoError(t, err)
	assert.Equal(t, "running", st["status"])

	_, err = c.Power(ctx, KindVM, "node3", 101, "start")
	assert.ErrorIs(t, err, ErrNodeOffline)

	_, err = c.Power(ctx, KindVM, "node1", 101, "reboot-hard")
	assert.Error(t, err)
}

func TestDryRunWritesNothing(t *testing.T) {
	off := NewOffline()
	var buf bytes.Buffer
	c := NewClient(DryRun{API: off, Out: &buf}, 1)
	ctx := context.Background()

	upid, err := c.Power(ctx, KindVM, "node1", 101, "start")
	require.NoError(t, err)
	assert.Equal(t, "dry-run", upid)
	assert.Equal(t, "DRY-RUN: POST /nodes/node1/qemu/101/status/start\n", buf.String())

	st, err := c.GuestStatus(ctx, KindVM, "node1", 101)
	require.NoError(t, err)
	assert.Equal(t, "stopped", st["status"])
}

func TestCreateAndClone(t *testing.T) {
	off := NewOffline()
	c := NewClient(off, 1)
	ctx := context.Background()

	id, err := c.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(103), id)

	_, err = c.CreateVM(ctx, "node2", VMSpec{VMID: id, Name: "new-vm", MemoryMB: 2048, Cores: 2,
		Storage: "local-lvm", Disk: "10G", NetModel: "virtio", NetBridge: "vmbr0"})
	require.NoError(t, err)

	_, err = c.CloneVM(ctx, "node1", 9000, CloneSpec{NewID: 104, Name: "from-tpl", Target: "node2", Full: true})
	require.NoError(t, err)

	vms, err := c.VMs(ctx, "node2", false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{102, 103, 104}, vmids(vms))
	assert.Equal(t, "2.00 GB", vms[1].Row(KindVM)["maxmem"])
}

func TestSpecParams(t *testing.T) {
	vm := VMSpec{VMID: 150, Name: "x", MemoryMB: 1024, Cores: 1, Storage: "local", Disk: "20G",
		ISO: "local:iso/debian.iso", NetModel: "virtio", NetBridge: "vmbr0"}.Params()
	assert.Equal(t, "local:20", vm["scsi0"])
	assert.Equal(t, "local:iso/debian.iso,media=cdrom", vm["ide2"])
	assert.Equal(t, "virtio,bridge=vmbr0", vm["net0"])

	ct := ContainerSpec{VMID: 250, Hostname: "c", Template: "local:vztmpl/a.tar.zst", MemoryMB: 512,
		Cores: 1, Storage: "local-lvm", Disk: "8G", Unprivileged: true}.Params()
	assert.Equal(t, "local-lvm:8", ct["rootfs"])
	assert.Equal(t, "name=eth0,bridge=vmbr0,ip=dhcp", ct["net0"])
	assert.Equal(t, 1, ct["unprivileged"])
	assert.NotContains(t, ct, "password")

	clone := CloneSpec{NewID: 7, Name: "c", Target: "n1"}.Params("n1")
	assert.NotContains(t, clone, "target")
	assert.Equal(t, 0, clone["full"])
}

func TestStorageMerge(t *testing.T) {
	c := NewClient(NewOffline(), 1)
	rows, err := c.Storage(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "node1", rows[0]["node"])
	assert.Equal(t, "cluster", rows[2]["node"])

	row := StorageRow(rows[0])
	assert.Equal(t, "Yes", row["active"])
	assert.Equal(t, "100.00 GB", row["total"])
	assert.Equal(t, "N/A", StorageRow(rows[2])["total"])
}

func TestStorageContent(t *testing.T) {
	c := NewClient(NewOffline(), 1)
	tpls, err := c.StorageContent(context.Background(), "node1", "vztmpl", "")
	require.NoError(t, err)
	require.Len(t, tpls, 2)
	assert.Equal(t, "local", tpls[0]["storage"])
	assert.Equal(t, "debian-12-standard_12.2-1_amd64.tar.zst", TemplateName(tpls[0]["volid"].(string)))

	row := TemplateRow(tpls[1], "node1")
	assert.Equal(t, "alpine-3.19-default_20240207_amd64.tar.xz", row["template"])
	assert.Equal(t, "3 MB", row["size"])
	assert.Equal(t, "node1", row["node"])
}

func TestTasks(t *testing.T) {
	off := NewOffline()
	off.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	c := NewClient(off, 1)
	tasks, err := c.Tasks(context.Background(), "node1", 1)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "qmstart", tasks[0].Type)
	assert.Equal(t, time.Unix(1_700_000_000-3600, 0).Format(time.DateTime), tasks[0].Row()["starttime"])
}

func TestNetwork(t *testing.T) {
	off := NewOffline()
	c := NewClient(off, 1)
	ctx := context.Background()

	require.NoError(t, c.CreateBridge(ctx, "node1", BridgeSpec{Name: "vmbr1", Ports: "eno2", Autostart: true}))
	bridges, err := c.Bridges(ctx, "node1")
	require.NoError(t, err)
	require.Len(t, bridges, 2)
	assert.Equal(t, "vmbr1", bridges[1]["iface"])

	require.NoError(t, c.UpdateInterface(ctx, "node1", "vmbr1", map[string]any{"comments": "lab"}))
	iface, err := c.Interface(ctx, "node1", "vmbr1")
	require.NoError(t, err)
	assert.Equal(t, "lab", iface["comments"])
	assert.Equal(t, "bridge", iface["type"])

	require.NoError(t, c.DeleteInterface(ctx, "node1", "vmbr1"))
	_, err = c.Interface(ctx, "node1", "vmbr1")
	assert.Error(t, err)

	upid, err := c.ApplyNetwork(ctx, "node1")
	require.NoError(t, err)
	assert.Contains(t, upid, "srvreload")

	row := InterfaceRow(bridges[0], []string{"iface", "active", "mtu"})
	assert.Equal(t, map[string]any{"iface": "vmbr0", "active": "Yes", "mtu": ""}, row)
}

func TestJSONTypes(t *testing.T) {
	var g []Guest
	require.NoError(t, json.Unmarshal([]byte(`[{"vmid":"200","template":1},{"vmid":101,"template":""}]`), &g))
	assert.Equal(t, VMID(200), g[0].VMID)
	assert.True(t, bool(g[0].Template))
	assert.False(t, bool(g[1].Template))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "4.00 GB", GB(4*gib))
	assert.Equal(t, "512 MB", MB(512*mib))
	assert.Equal(t, "24.00 hours", Hours(86400))
	assert.Equal(t, "", Timestamp(0))
	assert.Equal(t, "No", YesNo(false))
	assert.Equal(t, "2048 MB", Guest{MaxMem: 2 * gib}.Row(KindContainer)["maxmem"])
}
