package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/pkg/ldap"
	"github.com/spf13/cobra"
)

// promptMarker is the --set-password value used when no password was
// given on the command line.
const promptMarker = "\x00prompt"

type LDAPUserOptions struct {
	utils.OutputOptions
	Name       string
	All        bool
	Attributes string

	SetPassword         string
	ResetPassword       bool
	ForcePasswordChange bool
	Enable              bool
	Disable             bool
	Lock                bool
	Unlock              bool
	SetExpiry           string
	MoveTo              string
	CloneTo             string
	SetAttributes       []string
	AddToGroups         string
	RemoveFromGroups    string
}

func NewCmdLDAPUser() *cobra.Command {
	o := &LDAPUserOptions{}
	cmd := &cobra.Command{
		Use:   "user NAME",
		Short: "Show or manage a user",
		Long: `Show a user found by uid, cn or mail, or change it with one of the
management flags. Group arguments accept a CN or a full DN.`,
		Example: `  pyadm ldap user jdoe
  pyadm ldap user jdoe@example.com --json
  pyadm ldap user jdoe --attributes mail,department
  pyadm ldap user jdoe --add-to-group developers,ops
  pyadm ldap user jdoe --reset-password
  pyadm ldap user jdoe --set-expiry 2025-12-31
  pyadm ldap user jdoe --set-attribute department=Engineering`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(args)
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
	f.BoolVarP(&o.All, "all", "a", false, "Show all attributes")
	f.StringVarP(&o.Attributes, "attributes", "A", "", "Comma separated attributes to show")
	f.StringVarP(&o.SetPassword, "set-password", "P", "", "Set the password (prompted when given without value)")
	f.Lookup("set-password").NoOptDefVal = promptMarker
	f.BoolVar(&o.ResetPassword, "reset-password", false, "Set a random 16 character password and print it")
	f.BoolVar(&o.ForcePasswordChange, "force-password-change", false, "Require a password change at next login")
	f.BoolVar(&o.Enable, "enable", false, "Enable the account")
	f.BoolVar(&o.Disable, "disable", false, "Disable the account")
	f.BoolVar(&o.Lock, "lock", false, "Lock the account")
	f.BoolVar(&o.Unlock, "unlock", false, "Unlock the account")
	f.StringVar(&o.SetExpiry, "set-expiry", "", "Set the account expiry date (YYYY-MM-DD)")
	f.StringVar(&o.MoveTo, "move-to", "", "Move the user below this OU DN")
	f.StringVar(&o.CloneTo, "clone-to", "", "Copy the user to a new CN")
	f.StringArrayVar(&o.SetAttributes, "set-attribute", nil, "Set an attribute (attr=value), repeatable")
	f.StringVarP(&o.AddToGroups, "add-to-group", "G", "", "Add the user to groups (comma separated)")
	f.StringVarP(&o.RemoveFromGroups, "remove-from-group", "R", "", "Remove the user from groups (comma separated)")

	cmd.MarkFlagsMutuallyExclusive("enable", "disable")
	cmd.MarkFlagsMutuallyExclusive("lock", "unlock")
	cmd.MarkFlagsMutuallyExclusive("set-password", "reset-password")
	return cmd
}

func (o *LDAPUserOptions) Complete(args []string) {
	o.Name = args[0]
}

func (o *LDAPUserOptions) Validate() error {
	for _, kv := range o.SetAttributes {
		if _, _, err := utils.ParseKeyValue(kv); err != nil {
			return err
		}
	}
	if o.SetExpiry != "" {
		if _, err := ldap.ADTimestamp(o.SetExpiry); err != nil {
			return err
		}
	}
	return nil
}

func (o *LDAPUserOptions) manages() bool {
	return o.SetPassword != "" || o.ResetPassword || o.ForcePasswordChange || o.Enable || o.Disable ||
		o.Lock || o.Unlock || o.SetExpiry != "" || o.MoveTo != "" || o.CloneTo != "" ||
		len(o.SetAttributes) > 0 || o.AddToGroups != "" || o.RemoveFromGroups != ""
}

// Run shows the user, or applies every requested change in a fixed order:
// password, account flags, expiry, attributes, groups, clone, move.
func (o *LDAPUserOptions) Run(cmd *cobra.Command, c *ldap.Client) error {
	out := cmd.OutOrStdout()
	if !o.manages() {
		f, err := o.Format()
		if err != nil {
			return err
		}
		records, err := c.FindUsers(o.Name, attributeList(o.All, o.Attributes))
		if err != nil {
			return err
		}
		return printRecords(out, records, f)
	}

	if _, err := c.UserDN(o.Name); err != nil {
		return err
	}

	if o.SetPassword != "" {
		pw := o.SetPassword
		if pw == promptMarker {
			var err error
			if pw, err = utils.ReadPasswordFromTerminal(fmt.Sprintf("New password for %s: ", o.Name)); err != nil {
				return err
			}
		}
		if err := c.SetPassword(o.Name, pw); err != nil {
			return err
		}
		fmt.Fprintf(out, "Password for user '%s' set successfully.\n", o.Name)
	}
	if o.ResetPassword {
		pw, err := c.ResetPassword(o.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Password for user '%s' reset successfully.\nNew password: %s\n", o.Name, pw)
	}

	steps := []struct {
		on   bool
		do   func(string) error
		done string
	}{
		{o.ForcePasswordChange, c.ForcePasswordChange, "User '%s' must change the password at next login."},
		{o.Enable, c.Enable, "User account '%s' enabled."},
		{o.Disable, c.Disable, "User account '%s' disabled."},
		{o.Lock, c.Lock, "User account '%s' locked."},
		{o.Unlock, c.Unlock, "User account '%s' unlocked."},
	}
	for _, s := range steps {
		if !s.on {
			continue
		}
		if err := s.do(o.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, s.done+"\n", o.Name)
	}

	if o.SetExpiry != "" {
		if err := c.SetExpiry(o.Name, o.SetExpiry); err != nil {
			return err
		}
		fmt.Fprintf(out, "Account expiry for '%s' set to %s.\n", o.Name, o.SetExpiry)
	}
	for _, kv := range o.SetAttributes {
		attr, value, _ := utils.ParseKeyValue(kv)
		if err := c.SetUserAttribute(o.Name, attr, value); err != nil {
			return err
		}
		fmt.Fprintf(out, "Attribute '%s' for user '%s' set to '%s'.\n", attr, o.Name, value)
	}

	if err := o.changeGroups(out, c); err != nil {
		return err
	}

	if o.CloneTo != "" {
		dn, err := c.CloneUser(o.Name, o.CloneTo)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "User '%s' cloned to '%s'.\n", o.Name, dn)
	}
	if o.MoveTo != "" {
		dn, err := c.MoveUser(o.Name, o.MoveTo)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "User '%s' moved to '%s'.\n", o.Name, dn)
	}
	return nil
}

func (o *LDAPUserOptions) changeGroups(out io.Writer, c *ldap.Client) error {
	if groups := utils.SplitList(o.AddToGroups); len(groups) > 0 {
		n, err := c.AddToGroups(o.Name, groups)
		if err != nil {
			if errors.Is(err, ldap.ErrNoChange) {
				return fmt.Errorf("failed to add user '%s' to any of the groups: %w", o.Name, err)
			}
			return err
		}
		fmt.Fprintf(out, "Added user '%s' to %d of %d group(s).\n", o.Name, n, len(groups))
	}
	if groups := utils.SplitList(o.RemoveFromGroups); len(groups) > 0 {
		n, err := c.RemoveFromGroups(o.Name, groups)
		if err != nil {
			if errors.Is(err, ldap.ErrNoChange) {
				return fmt.Errorf("failed to remove user '%s' from any of the groups: %w", o.Name, err)
			}
			return err
		}
		fmt.Fprintf(out, "Removed user '%s' from %d of %d group(s).\n", o.Name, n, len(groups))
	}
	return nil
}
