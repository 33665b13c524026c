package cmd

import (
	"fmt"
	"io"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/okleinschmidt/pyadm/pkg/pve"
	"github.com/spf13/cobra"
)

var (
	guestColumns = []output.Column{
		{Key: "vmid", Title: "VMID"},
		{Key: "name", Title: "NAME"},
		{Key: "status", Title: "STATUS"},
		{Key: "node", Title: "NODE"},
		{Key: "cpus", Title: "CPUS"},
		{Key: "maxmem", Title: "MEMORY"},
	}
	nodeColumns = []output.Column{
		{Key: "node", Title: "NODE"},
		{Key: "status", Title: "STATUS"},
		{Key: "uptime", Title: "UPTIME"},
		{Key: "cpu", Title: "CPU"},
		{Key: "maxmem", Title: "MEMORY"},
		{Key: "maxdisk", Title: "DISK"},
	}
	taskColumns = []output.Column{
		{Key: "upid", Title: "UPID"},
		{Key: "type", Title: "TYPE"},
		{Key: "status", Title: "STATUS"},
		{Key: "starttime", Title: "START"},
		{Key: "endtime", Title: "END"},
		{Key: "id", Title: "ID"},
	}
)

func NewCmdPVE() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pve",
		Short: "Manage Proxmox VE nodes, guests, storage and networking",
		Long: `Manage a Proxmox VE cluster. Select a cluster with --server/-s (a section
such as PVE or PVE_PROD), or use --offline for a built-in sample cluster.
Guests can be referenced by VMID or by name; --node narrows the lookup.`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if offline, _ := cmd.Flags().GetBool("offline"); offline {
				return nil
			}
			return utils.SelectSection("server", config.PrefixPVE)(cmd, args)
		},
	}
	cmd.PersistentFlags().StringP("server", "s", "", "Config section of the Proxmox VE cluster")
	cmd.PersistentFlags().Bool("offline", false, "Use the built-in sample cluster instead of a server")
	cmd.PersistentFlags().Bool("dry-run", false, "Print changes instead of sending them")
	cmd.PersistentFlags().Int("parallel", 1, "Number of nodes queried at once")

	cmd.AddCommand(NewCmdPVENode())
	cmd.AddCommand(NewCmdPVEGuest(pve.KindVM))
	cmd.AddCommand(NewCmdPVEGuest(pve.KindContainer))
	cmd.AddCommand(NewCmdPVEStorage())
	cmd.AddCommand(NewCmdPVENetwork())

	return cmd
}

func pveClient(cmd *cobra.Command) (*pve.Client, error) {
	f := cmd.Flags()
	offline, _ := f.GetBool("offline")
	dryRun, _ := f.GetBool("dry-run")
	parallel, _ := f.GetInt("parallel")
	if parallel < 1 {
		parallel = 1
	}

	var api pve.API
	if offline {
		logger.Logger.Info("using the offline sample cluster")
		api = pve.NewOffline()
	} else {
		sel, err := utils.SelectionFrom(cmd.Context())
		if err != nil {
			return nil, err
		}
		cfg, err := sel.Provider.PVE(sel.Section)
		if err != nil {
			return nil, err
		}
		api = pve.Connect(cfg)
	}
	if dryRun {
		api = pve.DryRun{API: api, Out: cmd.OutOrStdout()}
	}
	return pve.NewClient(api, parallel), nil
}

// printRows renders a listing; an empty text listing prints none instead.
func printRows(w io.Writer, f output.Format, rows []map[string]any, cols []output.Column, none string) error {
	if len(rows) == 0 && f == output.Text {
		fmt.Fprintln(w, none)
		return nil
	}
	return output.RenderTable(w, rows, cols, f)
}

func NewCmdPVENode() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Show cluster nodes",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	listOpts := &utils.OutputOptions{}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the nodes of the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := listOpts.Format()
			if err != nil {
				return err
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			nodes, err := c.Nodes(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([]map[string]any, len(nodes))
			for i, n := range nodes {
				rows[i] = n.Row()
			}
			return printRows(cmd.OutOrStdout(), f, rows, nodeColumns, "No nodes found.")
		},
	}
	listOpts.AddFlags(list)

	statusOpts := &utils.OutputOptions{}
	status := &cobra.Command{
		Use:   "status NODE",
		Short: "Show the status of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := statusOpts.Printer(cmd)
			if err != nil {
				return err
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			st, err := c.NodeStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.Map(st)
		},
	}
	statusOpts.AddFlags(status)

	var limit int
	tasksOpts := &utils.OutputOptions{}
	tasks := &cobra.Command{
		Use:   "tasks NODE",
		Short: "Show recent tasks of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := tasksOpts.Format()
			if err != nil {
				return err
			}
			c, err := pveClient(cmd)
			if err != nil {
				return err
			}
			tasks, err := c.Tasks(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			rows := make([]map[string]any, len(tasks))
			for i, t := range tasks {
				rows[i] = t.Row()
			}
			return printRows(cmd.OutOrStdout(), f, rows, taskColumns, "No tasks found.")
		},
	}
	tasks.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of tasks")
	tasksOpts.AddFlags(tasks)

	cmd.AddCommand(list, status, tasks)
	return cmd
}
