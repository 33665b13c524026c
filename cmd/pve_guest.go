package cmd

import (
	"fmt"
	"strings"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/okleinschmidt/pyadm/pkg/pve"
	"github.com/spf13/cobra"
)

var templateColumns = []output.Column{
	{Key: "node", Title: "NODE"},
	{Key: "storage", Title: "STORAGE"},
	{Key: "template", Title: "TEMPLATE"},
	{Key: "size", Title: "SIZE"},
}

// NewCmdPVEGuest builds "vm" or "ct". Both share listing, status and power
// commands; creation and templates differ by kind.
func NewCmdPVEGuest(kind pve.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vm",
		Short: "Manage virtual machines",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	if kind == pve.KindContainer {
		cmd.Use = "ct"
		cmd.Aliases = []string{"lxc"}
		cmd.Short = "Manage LXC containers"
	}

	cmd.AddCommand(newCmdGuestList(kind))
	cmd.AddCommand(newCmdGuestStatus(kind))
	for _, action := range []string{"start", "stop", "shutdown"} {
		cmd.AddCommand(newCmdGuestPower(kind, action))
	}
	if kind == pve.KindVM {
		cmd.AddCommand(newCmdVMTemplates())
		cmd.AddCommand(newCmdVMCreate())
		cmd.AddCommand(newCmdVMClone())
	} else {
		cmd.AddCommand(newCmdCTTemplates())
		cmd.AddCommand(newCmdCTCreate())
	}
	return cmd
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func guestRows(kind pve.Kind, guests []pve.Guest) []map[string]any {
	rows := make([]map[string]any, len(guests))
	for i, g := range guests {
		rows[i] = g.Row(kind)
	}
	return rows
}

func newCmdGuestList(kind pve.Kind) *cobra.Command {
	o := &utils.OutputOptions{}
	var node string
	var templates bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss across the online nodes", kind.Label),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := o.Format()
			if err != nil {
				return err
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			var guests []pve.Guest
			if kind == pve.KindVM {
				guests, err = c.VMs(cmd.Context(), node, templates)
			} else {
				guests, err = c.Containers(cmd.Context(), node)
			}
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), f, guestRows(kind, guests), guestColumns,
				fmt.Sprintf("No %ss found.", kind.Label))
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().StringVarP(&node, "node", "n", "", "Only this node")
	if kind == pve.KindVM {
		cmd.Flags().BoolVar(&templates, "templates", false, "Include templates")
	}
	return cmd
}

func newCmdGuestStatus(kind pve.Kind) *cobra.Command {
	o := &utils.OutputOptions{}
	var node string
	cmd := &cobra.Command{
		Use:   "status REF",
		Short: fmt.Sprintf("Show the status of a %s by VMID or name", kind.Label),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.Printer(cmd)
			if err != nil {
				return err
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			id, at, err := c.Resolve(cmd.Context(), kind, pve.ParseRef(args[0]), node)
			if err != nil {
				return err
			}
			st, err := c.GuestStatus(cmd.Context(), kind, at, id)
			if err != nil {
				return err
			}
			return p.Map(st)
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().StringVarP(&node, "node", "n", "", "Node the guest is on")
	return cmd
}

func newCmdGuestPower(kind pve.Kind, action string) *cobra.Command {
	var node string
	cmd := &cobra.Command{
		Use:   action + " REF",
		Short: fmt.Sprintf("%s a %s by VMID or name", capitalize(action), kind.Label),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			id, at, err := c.Resolve(cmd.Context(), kind, pve.ParseRef(args[0]), node)
			if err != nil {
				return err
			}
			upid, err := c.Power(cmd.Context(), kind, at, id, action)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d on node %s: %s requested. Task: %s\n",
				capitalize(kind.Label), id, at, action, upid)
			return nil
		},
	}
	cmd.Flags().StringVarP(&node, "node", "n", "", "Node the guest is on")
	return cmd
}

func newCmdVMTemplates() *cobra.Command {
	o := &utils.OutputOptions{}
	var node string
	cmd := &cobra.Command{
		Use:   "list-templates",
		Short: "List VM templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := o.Format()
			if err != nil {
				return err
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			tpls, err := c.VMTemplates(cmd.Context(), node)
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), f, guestRows(pve.KindVM, tpls), guestColumns, "No VM templates found.")
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().StringVarP(&node, "node", "n", "", "Only this node")
	return cmd
}

func newCmdCTTemplates() *cobra.Command {
	o := &utils.OutputOptions{}
	var node, storage string
	cmd := &cobra.Command{
		Use:   "list-templates",
		Short: "List container templates (vztmpl) in storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := o.Format()
			if err != nil {
				return err
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			nodes := []string{node}
			if node == "" {
				if nodes, err = c.OnlineNodes(cmd.Context()); err != nil {
					return err
				}
			}
			var rows []map[string]any
			for _, n := range nodes {
				vols, err := c.StorageContent(cmd.Context(), n, "vztmpl", storage)
				if err != nil {
					logger.Logger.Warn("skipping node", "node", n, "error", err)
					continue
				}
				for _, v := range vols {
					rows = append(rows, pve.TemplateRow(v, n))
				}
			}
			return printRows(cmd.OutOrStdout(), f, rows, templateColumns, "No container templates found.")
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().StringVarP(&node, "node", "n", "", "Only this node")
	cmd.Flags().StringVar(&storage, "storage", "", "Only this storage")
	return cmd
}

type VMCreateOptions struct {
	Node string
	Spec pve.VMSpec
}

func newCmdVMCreate() *cobra.Command {
	o := &VMCreateOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a virtual machine",
		Example: `  pyadm pve vm create --name web01 --node node1 --memory 4096 --cores 2
  pyadm pve vm create --name web02 --node node1 --disk 64G --iso local:iso/debian-12.iso`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			if o.Spec.VMID == 0 {
				if o.Spec.VMID, err = c.NextID(cmd.Context()); err != nil {
					return err
				}
			}
			upid, err := c.CreateVM(cmd.Context(), o.Node, o.Spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VM '%s' (ID %d) creation started on node %s. Task: %s\n",
				o.Spec.Name, o.Spec.VMID, o.Node, upid)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.Spec.Name, "name", "", "VM name")
	f.StringVarP(&o.Node, "node", "n", "", "Node to create the VM on")
	f.Uint64Var(&o.Spec.VMID, "vmid", 0, "VMID (default: next free ID)")
	f.IntVar(&o.Spec.MemoryMB, "memory", 2048, "Memory in MB")
	f.IntVar(&o.Spec.Cores, "cores", 2, "CPU cores")
	f.StringVar(&o.Spec.Storage, "storage", "local-lvm", "Storage for the disk")
	f.StringVar(&o.Spec.Disk, "disk", "32G", "Disk size, empty for no disk")
	f.StringVar(&o.Spec.ISO, "iso", "", "ISO volume to attach, e.g. local:iso/debian.iso")
	f.StringVar(&o.Spec.NetModel, "net-model", "virtio", "Network card model")
	f.StringVar(&o.Spec.NetBridge, "bridge", "vmbr0", "Bridge for the network card")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("node")
	return cmd
}

type VMCloneOptions struct {
	Node string
	Spec pve.CloneSpec
}

func newCmdVMClone() *cobra.Command {
	o := &VMCloneOptions{}
	cmd := &cobra.Command{
		Use:   "clone TEMPLATE NEWNAME",
		Short: "Clone a VM or template by VMID or name",
		Example: `  pyadm pve vm clone debian-12-template web03
  pyadm pve vm clone 9000 web04 --target node2 --full`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			id, at, err := c.Resolve(cmd.Context(), pve.KindVM, pve.ParseRef(args[0]), o.Node)
			if err != nil {
				return err
			}
			o.Spec.Name = args[1]
			if o.Spec.NewID == 0 {
				if o.Spec.NewID, err = c.NextID(cmd.Context()); err != nil {
					return err
				}
			}
			upid, err := c.CloneVM(cmd.Context(), at, id, o.Spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cloning VM %d to '%s' (ID %d). Task: %s\n", id, o.Spec.Name, o.Spec.NewID, upid)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.Node, "node", "n", "", "Node the source is on")
	f.StringVar(&o.Spec.Target, "target", "", "Node for the clone (default: source node)")
	f.Uint64Var(&o.Spec.NewID, "newid", 0, "VMID of the clone (default: next free ID)")
	f.StringVar(&o.Spec.Storage, "storage", "", "Target storage for a full clone")
	f.BoolVar(&o.Spec.Full, "full", false, "Full clone instead of a linked clone")
	return cmd
}

type CTCreateOptions struct {
	Node       string
	Privileged bool
	Spec       pve.ContainerSpec
}

func newCmdCTCreate() *cobra.Command {
	o := &CTCreateOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an LXC container",
		Example: `  pyadm pve ct create --hostname app01 --node node1 --template debian-12-standard_12.2-1_amd64.tar.zst
  pyadm pve ct create --hostname app02 --node node1 --template local:vztmpl/alpine.tar.xz --memory 1024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			if !strings.Contains(o.Spec.Template, ":") {
				o.Spec.Template = "local:vztmpl/" + o.Spec.Template
			}
			o.Spec.Unprivileged = !o.Privileged
			if o.Spec.VMID == 0 {
				if o.Spec.VMID, err = c.NextID(cmd.Context()); err != nil {
					return err
				}
			}
			upid, err := c.CreateContainer(cmd.Context(), o.Node, o.Spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Container '%s' (ID %d) creation started on node %s. Task: %s\n",
				o.Spec.Hostname, o.Spec.VMID, o.Node, upid)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.Spec.Hostname, "hostname", "", "Container hostname")
	f.StringVar(&o.Spec.Template, "template", "", "Template volume or file name in local:vztmpl")
	f.StringVarP(&o.Node, "node", "n", "", "Node to create the container on")
	f.Uint64Var(&o.Spec.VMID, "vmid", 0, "VMID (default: next free ID)")
	f.IntVar(&o.Spec.MemoryMB, "memory", 512, "Memory in MB")
	f.IntVar(&o.Spec.SwapMB, "swap", 512, "Swap in MB")
	f.IntVar(&o.Spec.Cores, "cores", 1, "CPU cores")
	f.StringVar(&o.Spec.Storage, "storage", "local-lvm", "Storage for the root disk")
	f.StringVar(&o.Spec.Disk, "disk", "8G", "Root disk size")
	f.StringVar(&o.Spec.Password, "password", "", "Root password")
	f.StringVar(&o.Spec.Net0, "net0", "", "Network config (default name=eth0,bridge=vmbr0,ip=dhcp)")
	f.BoolVar(&o.Privileged, "privileged", false, "Create a privileged container")
	cmd.MarkFlagRequired("hostname")
	cmd.MarkFlagRequired("template")
	cmd.MarkFlagRequired("node")
	return cmd
}
