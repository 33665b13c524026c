package cmd

import (
	"fmt"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/pkg/ldap"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/spf13/cobra"
)

type LDAPGroupsOptions struct {
	utils.OutputOptions
	Name string

	Create         bool
	Description    string
	Delete         bool
	AddMember      string
	RemoveMember   string
	AddFromFile    string
	RemoveFromFile string
	SetDescription string
	RenameTo       string
	MoveTo         string
	SetAttributes  []string
}

func NewCmdLDAPGroups() *cobra.Command {
	o := &LDAPGroupsOptions{}
	cmd := &cobra.Command{
		Use:   "groups NAME",
		Short: "Show the groups of a user, or manage a group",
		Long: `Without management flags NAME is a user and its groups are listed.
With a management flag NAME is the CN of the group to change.`,
		Example: `  pyadm ldap groups jdoe
  pyadm ldap groups "HR Team" --create --description "Human Resources"
  pyadm ldap groups "HR Team" --add-member jdoe
  pyadm ldap groups developers --members-from-file users.txt
  pyadm ldap groups "Old Team" --rename-to "New Team"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Name = args[0]
			if err := o.Validate(); err != nil {
				return err
			}
			c, err := ldapClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return o.Run(cmd, c)
		},
	}
	o.AddFlags(cmd)
	f := cmd.Flags()
	f.BoolVarP(&o.Create, "create", "c", false, "Create the group")
	f.StringVar(&o.Description, "description", "", "Description for --create")
	f.BoolVarP(&o.Delete, "delete", "d", false, "Delete the group")
	f.StringVarP(&o.AddMember, "add-member", "m", "", "Add a user (CN, uid, mail or DN)")
	f.StringVarP(&o.RemoveMember, "remove-member", "r", "", "Remove a user (CN, uid, mail or DN)")
	f.StringVarP(&o.AddFromFile, "members-from-file", "f", "", "Add the users listed in a file, one per line")
	f.StringVarP(&o.RemoveFromFile, "remove-members-from-file", "F", "", "Remove the users listed in a file")
	f.StringVar(&o.SetDescription, "set-description", "", "Set the description")
	f.StringVar(&o.RenameTo, "rename-to", "", "Rename the group to a new CN")
	f.StringVar(&o.MoveTo, "move-to", "", "Move the group below this OU DN")
	f.StringArrayVar(&o.SetAttributes, "set-attribute", nil, "Set an attribute (attr=value), repeatable")

	cmd.MarkFlagsMutuallyExclusive("create", "delete")
	return cmd
}

func (o *LDAPGroupsOptions) Validate() error {
	for _, kv := range o.SetAttributes {
		if _, _, err := utils.ParseKeyValue(kv); err != nil {
			return err
		}
	}
	if o.Delete && o.manages(false) {
		return fmt.Errorf("--delete cannot be combined with other group changes")
	}
	return nil
}

func (o *LDAPGroupsOptions) manages(withDelete bool) bool {
	return o.Create || (withDelete && o.Delete) || o.AddMember != "" || o.RemoveMember != "" ||
		o.AddFromFile != "" || o.RemoveFromFile != "" || o.SetDescription != "" || o.RenameTo != "" ||
		o.MoveTo != "" || len(o.SetAttributes) > 0
}

func (o *LDAPGroupsOptions) Run(cmd *cobra.Command, c *ldap.Client) error {
	out := cmd.OutOrStdout()
	if !o.manages(true) {
		f, err := o.Format()
		if err != nil {
			return err
		}
		groups, err := c.UserGroups(o.Name)
		if err != nil {
			return err
		}
		return printList(out, "user", o.Name, groups, f)
	}

	if o.Create {
		dn, err := c.CreateGroup(o.Name, o.Description)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Group '%s' created (%s).\n", o.Name, dn)
	}
	if o.Delete {
		dn, err := c.DeleteGroup(o.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Group '%s' deleted (%s).\n", o.Name, dn)
		return nil
	}

	if o.SetDescription != "" {
		if err := c.SetGroupDescription(o.Name, o.SetDescription); err != nil {
			return err
		}
		fmt.Fprintf(out, "Description for group '%s' set to '%s'.\n", o.Name, o.SetDescription)
	}
	if o.AddMember != "" {
		if err := c.AddMember(o.Name, o.AddMember); err != nil {
			return err
		}
		fmt.Fprintf(out, "User '%s' added to group '%s'.\n", o.AddMember, o.Name)
	}
	if o.RemoveMember != "" {
		if err := c.RemoveMember(o.Name, o.RemoveMember); err != nil {
			return err
		}
		fmt.Fprintf(out, "User '%s' removed from group '%s'.\n", o.RemoveMember, o.Name)
	}
	if o.AddFromFile != "" {
		members, err := utils.ReadListFile(o.AddFromFile)
		if err != nil {
			return err
		}
		n, err := c.AddMembers(o.Name, members)
		if err != nil {
			return fmt.Errorf("failed to add any users to group '%s': %w", o.Name, err)
		}
		fmt.Fprintf(out, "Added %d of %d user(s) to group '%s'.\n", n, len(members), o.Name)
	}
	if o.RemoveFromFile != "" {
		members, err := utils.ReadListFile(o.RemoveFromFile)
		if err != nil {
			return err
		}
		n, err := c.RemoveMembers(o.Name, members)
		if err != nil {
			return fmt.Errorf("failed to remove any users from group '%s': %w", o.Name, err)
		}
		fmt.Fprintf(out, "Removed %d of %d user(s) from group '%s'.\n", n, len(members), o.Name)
	}
	for _, kv := range o.SetAttributes {
		attr, value, _ := utils.ParseKeyValue(kv)
		if err := c.SetGroupAttribute(o.Name, attr, value); err != nil {
			return err
		}
		fmt.Fprintf(out, "Attribute '%s' for group '%s' set to '%s'.\n", attr, o.Name, value)
	}

	// Rename before move; the move then looks the group up by its new CN.
	name := o.Name
	if o.RenameTo != "" {
		dn, err := c.RenameGroup(name, o.RenameTo)
		if err != nil {
			return err
		}
		name = o.RenameTo
		fmt.Fprintf(out, "Group '%s' renamed to '%s' (%s).\n", o.Name, o.RenameTo, dn)
	}
	if o.MoveTo != "" {
		dn, err := c.MoveGroup(name, o.MoveTo)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Group '%s' moved to '%s'.\n", name, dn)
	}
	return nil
}

type LDAPMembersOptions struct {
	utils.OutputOptions
	Group     string
	Recursive bool
	Filter    string
	Count     bool
	Export    string
	CNOnly    bool
}

func NewCmdLDAPMembers() *cobra.Command {
	o := &LDAPMembersOptions{}
	cmd := &cobra.Command{
		Use:   "members GROUP",
		Short: "List the members of a group",
		Long: `List the member DNs of a group, sorted. --recursive replaces nested
groups by their members; cycles are followed once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Group = args[0]
			c, err := ldapClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return o.Run(cmd, c)
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().BoolVarP(&o.Recursive, "recursive", "r", false, "Expand nested groups")
	cmd.Flags().StringVar(&o.Filter, "filter", "", "Only members whose DN contains this text")
	cmd.Flags().BoolVar(&o.Count, "count", false, "Only print the number of members")
	cmd.Flags().StringVarP(&o.Export, "export", "e", "", "Write the members to a file, one per line")
	cmd.Flags().BoolVar(&o.CNOnly, "cn-only", false, "Print only the first RDN value of each member")
	return cmd
}

func (o *LDAPMembersOptions) Run(cmd *cobra.Command, c *ldap.Client) error {
	out := cmd.OutOrStdout()
	g, err := c.Members(o.Group, o.Recursive)
	if err != nil {
		return err
	}
	g.Members = ldap.FilterMembers(g.Members, o.Filter, o.CNOnly)

	if o.Count {
		fmt.Fprintf(out, "Group '%s' has %d members.\n", o.Group, len(g.Members))
		return nil
	}
	if o.Export != "" {
		if err := utils.WriteListFile(o.Export, g.Members); err != nil {
			return fmt.Errorf("export members: %w", err)
		}
		fmt.Fprintf(out, "Members of group '%s' exported to '%s'.\n", o.Group, o.Export)
		return nil
	}

	f, err := o.Format()
	if err != nil {
		return err
	}
	switch f {
	case output.JSON, output.YAML:
		return output.Dump(out, g, f)
	case output.CSV:
		rows := make([]map[string]any, len(g.Members))
		for i, m := range g.Members {
			rows[i] = map[string]any{"member": m}
		}
		return output.RenderTable(out, rows, output.Columns("member"), f)
	}
	fmt.Fprintf(out, "Group: %s\n", g.Name)
	if g.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", g.Description)
	}
	fmt.Fprintf(out, "Members (%d):\n", len(g.Members))
	for _, m := range g.Members {
		fmt.Fprintf(out, "  - %s\n", m)
	}
	return nil
}
