package cmd

import (
	"fmt"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/okleinschmidt/pyadm/pkg/pve"
	"github.com/spf13/cobra"
)

var (
	storageColumns = []output.Column{
		{Key: "storage", Title: "STORAGE"},
		{Key: "type", Title: "TYPE"},
		{Key: "content", Title: "CONTENT"},
		{Key: "node", Title: "NODE"},
		{Key: "active", Title: "ACTIVE"},
		{Key: "total", Title: "TOTAL"},
		{Key: "used", Title: "USED"},
		{Key: "avail", Title: "AVAIL"},
	}
	interfaceColumns = []output.Column{
		{Key: "iface", Title: "IFACE"},
		{Key: "type", Title: "TYPE"},
		{Key: "active", Title: "ACTIVE"},
		{Key: "method", Title: "METHOD"},
		{Key: "cidr", Title: "CIDR"},
		{Key: "gateway", Title: "GATEWAY"},
	}
	bridgeColumns = []output.Column{
		{Key: "iface", Title: "BRIDGE"},
		{Key: "active", Title: "ACTIVE"},
		{Key: "cidr", Title: "CIDR"},
		{Key: "bridge_ports", Title: "PORTS"},
		{Key: "comments", Title: "COMMENT"},
	}
)

func columnKeys(cols []output.Column) []string {
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = c.Key
	}
	return keys
}

func NewCmdPVEStorage() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Show storage",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	o := &utils.OutputOptions{}
	var node string
	list := &cobra.Command{
		Use:   "list",
		Short: "List storage with usage",
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
			storages, err := c.Storage(cmd.Context(), node)
			if err != nil {
				return err
			}
			rows := make([]map[string]any, len(storages))
			for i, s := range storages {
				rows[i] = pve.StorageRow(s)
			}
			return printRows(cmd.OutOrStdout(), f, rows, storageColumns, "No storage found.")
		},
	}
	o.AddFlags(list)
	list.Flags().StringVarP(&node, "node", "n", "", "Only this node")

	cmd.AddCommand(list)
	return cmd
}

func NewCmdPVENetwork() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Manage node network interfaces",
		Long: `Manage the network interfaces of a node. Changes are staged by Proxmox VE
and take effect after "pyadm pve network apply NODE".`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(newCmdNetworkList("list NODE", "List the interfaces of a node", interfaceColumns, false))
	cmd.AddCommand(newCmdNetworkList("bridges NODE", "List the bridges of a node", bridgeColumns, true))
	cmd.AddCommand(newCmdNetworkShow())
	cmd.AddCommand(newCmdNetworkCreateBridge())
	cmd.AddCommand(newCmdNetworkDelete())
	cmd.AddCommand(newCmdNetworkApply())
	cmd.AddCommand(newCmdNetworkConfig())
	return cmd
}

func newCmdNetworkList(use, short string, cols []output.Column, bridges bool) *cobra.Command {
	o := &utils.OutputOptions{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := o.Format()
			if err != nil {
				return err
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			var ifaces []map[string]any
			if bridges {
				ifaces, err = c.Bridges(cmd.Context(), args[0])
			} else {
				ifaces, err = c.Interfaces(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			keys := columnKeys(cols)
			rows := make([]map[string]any, len(ifaces))
			for i, iface := range ifaces {
				rows[i] = pve.InterfaceRow(iface, keys)
			}
			return printRows(cmd.OutOrStdout(), f, rows, cols, "No interfaces found.")
		},
	}
	o.AddFlags(cmd)
	return cmd
}

func newCmdNetworkShow() *cobra.Command {
	o := &utils.OutputOptions{}
	cmd := &cobra.Command{
		Use:   "show NODE IFACE",
		Short: "Show one interface",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.Printer(cmd)
			if err != nil {
				return err
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			iface, err := c.Interface(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return p.Map(iface)
		},
	}
	o.AddFlags(cmd)
	return cmd
}

func newCmdNetworkCreateBridge() *cobra.Command {
	spec := pve.BridgeSpec{}
	cmd := &cobra.Command{
		Use:     "create-bridge NODE NAME",
		Short:   "Stage a new Linux bridge",
		Example: `  pyadm pve network create-bridge node1 vmbr1 --ports eno2 --cidr 10.0.0.1/24 --comment "Storage"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			spec.Name = args[1]
			if err := c.CreateBridge(cmd.Context(), args[0], spec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bridge '%s' staged on node %s. Run 'pyadm pve network apply %s' to activate it.\n",
				spec.Name, args[0], args[0])
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&spec.Ports, "ports", "", "Bridge ports, e.g. eno2")
	f.StringVar(&spec.CIDR, "cidr", "", "Address in CIDR notation")
	f.StringVar(&spec.Gateway, "gateway", "", "Default gateway")
	f.StringVar(&spec.Comment, "comment", "", "Comment")
	f.BoolVar(&spec.Autostart, "autostart", true, "Start the bridge at boot")
	f.IntVar(&spec.MTU, "mtu", 0, "MTU")
	return cmd
}

func newCmdNetworkDelete() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NODE IFACE",
		Short: "Stage the removal of an interface",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			if err := c.DeleteInterface(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Interface '%s' removed on node %s. Run 'pyadm pve network apply %s' to activate the change.\n",
				args[1], args[0], args[0])
			return nil
		},
	}
}

func newCmdNetworkApply() *cobra.Command {
	return &cobra.Command{
		Use:   "apply NODE",
		Short: "Apply the staged network changes of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			upid, err := c.ApplyNetwork(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Network changes applied on node %s. Task: %s\n", args[0], upid)
			return nil
		},
	}
}

func newCmdNetworkConfig() *cobra.Command {
	return &cobra.Command{
		Use:     "config NODE IFACE key=value...",
		Short:   "Stage new settings for an interface",
		Example: `  pyadm pve network config node1 vmbr0 comments="LAN bridge" mtu=9000`,
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := make(map[string]any, len(args)-2)
			for _, kv := range args[2:] {
				k, v, err := utils.ParseKeyValue(kv)
				if err != nil {
					return err
				}
				settings[k] = config.ParseScalar(v)
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			if err := c.UpdateInterface(cmd.Context(), args[0], args[1], settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Interface '%s' on node %s updated. Run 'pyadm pve network apply %s' to activate the change.\n",
				args[1], args[0], args[0])
			return nil
		},
	}
}
