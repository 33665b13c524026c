package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/global"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/ldap"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/spf13/cobra"
)

func NewCmdLDAP() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ldap",
		Short: "Query and manage LDAP and Active Directory",
		Long: `Query and manage users and groups in LDAP or Active Directory.
Select a server with --server/-s (a section such as LDAP or LDAP_PROD).`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
		PersistentPreRunE: utils.SelectSection("server", config.PrefixLDAP),
	}
	cmd.PersistentFlags().StringP("server", "s", "", "Config section of the LDAP server")
	cmd.PersistentFlags().BoolP("ask-password", "W", false, "Prompt for the bind password")

	cmd.AddCommand(NewCmdLDAPUser())
	cmd.AddCommand(NewCmdLDAPUserExists())
	cmd.AddCommand(NewCmdLDAPGroups())
	cmd.AddCommand(NewCmdLDAPGroupExists())
	cmd.AddCommand(NewCmdLDAPMembers())

	return cmd
}

// ldapClient connects with the selected section. The bind password is
// prompted for when asked to, or when a simple bind has none configured
// and stdin is a terminal.
func ldapClient(cmd *cobra.Command) (*ldap.Client, error) {
	sel, err := utils.SelectionFrom(cmd.Context())
	if err != nil {
		return nil, err
	}
	cfg, err := sel.Provider.LDAP(sel.Section)
	if err != nil {
		return nil, err
	}

	ask, _ := cmd.Flags().GetBool("ask-password")
	simple := strings.EqualFold(cfg.Auth, "simple")
	var password string
	if ask || (simple && cfg.BindUsername != "" && cfg.BindPassword == "" && global.IsTerminal) {
		password, err = utils.ReadPasswordFromTerminal(fmt.Sprintf("LDAP password for %s: ", cfg.BindUsername))
		if err != nil {
			return nil, err
		}
	}
	logger.Logger.Debug("connecting to LDAP", "section", cfg.Section, "server", cfg.Server, "auth", cfg.Auth)
	return ldap.Dial(cmd.Context(), cfg, password)
}

// printRecords renders directory entries. Text lists the sorted attributes
// of each entry, multi-valued membership attributes one value per line.
func printRecords(w io.Writer, records []ldap.Record, f output.Format) error {
	switch f {
	case output.JSON, output.YAML:
		return output.Dump(w, records, f)
	case output.CSV:
		cols := []output.Column{{Key: "dn", Title: "dn"}}
		seen := map[string]bool{}
		rows := make([]map[string]any, len(records))
		for i, r := range records {
			rows[i] = r.Row()
			for _, n := range r.Names() {
				if !seen[n] {
					seen[n] = true
					cols = append(cols, output.Column{Key: n, Title: n})
				}
			}
		}
		return output.RenderTable(w, rows, cols, f)
	}

	for i, r := range records {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "dn: %s\n", r.DN)
		for _, name := range r.Names() {
			values := r.Attributes[name]
			if ldap.IsListAttribute(name) {
				fmt.Fprintf(w, "%s:\n", name)
				for _, v := range values {
					fmt.Fprintf(w, " - %s\n", v)
				}
				continue
			}
			fmt.Fprintf(w, "%s: %s\n", name, strings.Join(values, ", "))
		}
	}
	return nil
}

// printList renders a titled list of strings, used for group memberships.
func printList(w io.Writer, key, title string, items []string, f output.Format) error {
	switch f {
	case output.JSON, output.YAML:
		return output.Dump(w, map[string]any{key: title, "values": items}, f)
	case output.CSV:
		rows := make([]map[string]any, len(items))
		for i, it := range items {
			rows[i] = map[string]any{key: title, "value": it}
		}
		return output.RenderTable(w, rows, output.Columns(key, "value"), f)
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, " - %s\n", it)
	}
	return nil
}

// existsCommand prints whether the entry exists and exits 1 when it does
// not.
func existsCommand(use, short, what string, check func(c *ldap.Client, name string) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ldapClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			ok, err := check(c, args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s '%s' does not exist.\n", what, args[0])
				return utils.ExitCode(1)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s '%s' exists.\n", what, args[0])
			return nil
		},
	}
}

func NewCmdLDAPUserExists() *cobra.Command {
	return existsCommand("user-exists NAME", "Check whether a user exists (exit 1 if not)", "User",
		func(c *ldap.Client, name string) (bool, error) { return c.UserExists(name) })
}

func NewCmdLDAPGroupExists() *cobra.Command {
	return existsCommand("group-exists GROUP", "Check whether a group exists (exit 1 if not)", "Group",
		func(c *ldap.Client, name string) (bool, error) { return c.GroupExists(name) })
}

// attributeList picks the attributes to fetch: all, an explicit list or
// nil for the defaults.
func attributeList(all bool, list string) []string {
	if all {
		return []string{"*"}
	}
	attrs := utils.SplitList(list)
	if len(attrs) == 0 {
		return nil
	}
	return slices.Compact(attrs)
}
