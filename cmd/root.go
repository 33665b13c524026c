/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/cmd/version"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/spf13/cobra"
)

func init() {
	// Group commands resolve their section in PersistentPreRunE; the root
	// hook still has to configure logging first.
	cobra.EnableTraverseRunHooks = true
}

// NewCmdRoot builds the whole command tree.
func NewCmdRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pyadm [command] [flags]",
		Short: "pyadm administers Elasticsearch/OpenSearch, LDAP/AD and Proxmox VE",
		Long: `pyadm is a command line tool for day to day administration of
Elasticsearch/OpenSearch clusters, LDAP and Active Directory servers and
Proxmox VE clusters.

Every backend is configured as a section of an INI file
(default ~/.config/pyadm/pyadm.conf). Sections are grouped by prefix
(LDAP*, ELASTIC*, PVE*); pick one with --server/-s or --cluster/-c.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("log-format")
			logger.Configure(os.Stderr, format)
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				logger.Logger.SetLogLevel(level)
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logger.Logger.SetLogLevel("debug")
				logger.Logger.Debug("debug mode enabled")
			}
			return nil
		},
	}
	cmd.SetVersionTemplate(version.Template)

	cmd.PersistentFlags().String("config", "", "Config file (default ~/.config/pyadm/pyadm.conf, or $PYADM_CONFIG)")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().String("log-format", "text", "Log format: text, json or auto")

	cmd.AddCommand(NewCmdConfig())
	cmd.AddCommand(NewCmdElastic())
	cmd.AddCommand(NewCmdLDAP())
	cmd.AddCommand(NewCmdPVE())
	cmd.AddCommand(NewCmdCheck())
	cmd.AddCommand(NewCmdMCP())
	cmd.AddCommand(NewCmdVersion())

	return cmd
}

// Execute runs the CLI and exits non-zero on error. It is called by
// main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewCmdRoot().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var code utils.ExitCode
	if errors.As(err, &code) {
		os.Exit(int(code))
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
