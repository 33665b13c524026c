package ldap

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/okleinschmidt/pyadm/pkg/logger"
)

func GroupFilter(name string) string {
	return fmt.Sprintf("(cn=%s)", ldap.EscapeFilter(name))
}

func (c *Client) FindGroups(name string, attrs []string) ([]Record, error) {
	if len(attrs) == 0 {
		attrs = DefaultGroupAttributes
	}
	entries, err := c.search(c.baseFor(c.cfg.GroupBase), GroupFilter(name), attrs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no group found with CN '%s'", ErrNotFound, name)
	}
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = NewRecord(e)
	}
	return out, nil
}

// GroupDN resolves a group name, or passes a DN through.
func (c *Client) GroupDN(name string) (string, error) {
	if LooksLikeDN(name) {
		return name, nil
	}
	entries, err := c.search(c.baseFor(c.cfg.GroupBase), GroupFilter(name), noAttributes)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no group found with CN '%s'", ErrNotFound, name)
	}
	return entries[0].DN, nil
}

func (c *Client) GroupExists(name string) (bool, error) {
	_, err := c.GroupDN(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// CreateGroup adds a group below the group container. groupOfNames needs
// at least one member, so OpenLDAP groups start with the bind DN.
func (c *Client) CreateGroup(name, description string) (string, error) {
	dn := fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(name), c.cfg.GroupContainer())
	req := ldap.NewAddRequest(dn, nil)
	req.Attribute("cn", []string{name})
	if c.cfg.IsAD() {
		req.Attribute("objectClass", []string{"top", "group"})
		req.Attribute("sAMAccountName", []string{name})
	} else {
		seed := c.cfg.BindUsername
		if !LooksLikeDN(seed) {
			seed = c.cfg.BaseDN
		}
		req.Attribute("objectClass", []string{"top", "groupOfNames"})
		req.Attribute("member", []string{seed})
	}
	if description != "" {
		req.Attribute("description", []string{description})
	}
	if err := c.conn.Add(req); err != nil {
		return "", fmt.Errorf("create group %s: %w", dn, err)
	}
	return dn, nil
}

func (c *Client) DeleteGroup(name string) (string, error) {
	dn, err := c.GroupDN(name)
	if err != nil {
		return "", err
	}
	if err := c.conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		return "", fmt.Errorf("delete group %s: %w", dn, err)
	}
	return dn, nil
}

// AddMember adds a user (name or DN) to the group.
func (c *Client) AddMember(group, member string) error {
	return c.changeMember(group, member, true)
}

func (c *Client) RemoveMember(group, member string) error {
	return c.changeMember(group, member, false)
}

func (c *Client) changeMember(group, member string, add bool) error {
	groupDN, err := c.GroupDN(group)
	if err != nil {
		return err
	}
	memberDN, err := c.UserDN(member)
	if err != nil {
		return err
	}
	return c.modifyMember(groupDN, memberDN, add)
}

func (c *Client) modifyMember(groupDN, memberDN string, add bool) error {
	req := ldap.NewModifyRequest(groupDN, nil)
	verb := "add"
	if add {
		req.Add("member", []string{memberDN})
	} else {
		verb = "remove"
		req.Delete("member", []string{memberDN})
	}
	if err := c.conn.Modify(req); err != nil {
		return fmt.Errorf("%s %s in %s: %w", verb, memberDN, groupDN, err)
	}
	return nil
}

// AddMembers adds every listed user and returns how many were added.
// Unknown users are logged and skipped.
func (c *Client) AddMembers(group string, members []string) (int, error) {
	return c.changeMembers(group, members, true)
}

func (c *Client) RemoveMembers(group string, members []string) (int, error) {
	return c.changeMembers(group, members, false)
}

func (c *Client) changeMembers(group string, members []string, add bool) (int, error) {
	groupDN, err := c.GroupDN(group)
	if err != nil {
		return 0, err
	}
	ok := 0
	for _, m := range members {
		memberDN, err := c.UserDN(m)
		if err == nil {
			err = c.modifyMember(groupDN, memberDN, add)
		}
		if err != nil {
			logger.Logger.Warn("skipping member", "group", group, "member", m, "error", err)
			continue
		}
		ok++
	}
	if ok == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoChange, group)
	}
	return ok, nil
}

func (c *Client) SetGroupDescription(name, description string) error {
	return c.SetGroupAttribute(name, "description", description)
}

func (c *Client) SetGroupAttribute(name, attr, value string) error {
	dn, err := c.GroupDN(name)
	if err != nil {
		return err
	}
	return c.SetAttribute(dn, attr, value)
}

func (c *Client) RenameGroup(name, newCN string) (string, error) {
	dn, err := c.GroupDN(name)
	if err != nil {
		return "", err
	}
	return c.Rename(dn, newCN)
}

func (c *Client) MoveGroup(name, newParent string) (string, error) {
	dn, err := c.GroupDN(name)
	if err != nil {
		return "", err
	}
	return c.Move(dn, newParent)
}

// Group is a group with its member DNs.
type Group struct {
	Name        string   `json:"group" yaml:"group"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Members     []string `json:"members" yaml:"members"`
}

// Members lists the member DNs of the group, sorted. With recursive set,
// nested groups are replaced by their own members.
func (c *Client) Members(name string, recursive bool) (*Group, error) {
	entries, err := c.search(c.baseFor(c.cfg.GroupBase), GroupFilter(name), []string{"cn", "description", "member"})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no group found with CN '%s'", ErrNotFound, name)
	}
	e := entries[0]
	g := &Group{Name: name, Description: e.GetAttributeValue("description")}

	seen := map[string]bool{strings.ToLower(e.DN): true}
	set := map[string]struct{}{}
	if err := c.collectMembers(e.GetAttributeValues("member"), recursive, seen, set); err != nil {
		return nil, err
	}
	g.Members = make([]string, 0, len(set))
	for m := range set {
		g.Members = append(g.Members, m)
	}
	slices.Sort(g.Members)
	return g, nil
}

func (c *Client) collectMembers(members []string, recursive bool, seen map[string]bool, set map[string]struct{}) error {
	for _, m := range members {
		if !recursive || !c.isGroupDN(m) {
			set[m] = struct{}{}
			continue
		}
		key := strings.ToLower(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		nested, err := c.read(m, []string{"member"})
		if errors.Is(err, ErrNotFound) {
			logger.Logger.Warn("nested group vanished", "dn", m)
			continue
		}
		if err != nil {
			return err
		}
		if err := c.collectMembers(nested.GetAttributeValues("member"), recursive, seen, set); err != nil {
			return err
		}
	}
	return nil
}

// isGroupDN decides from the DN alone whether a member is a nested group.
func (c *Client) isGroupDN(dn string) bool {
	lower := strings.ToLower(dn)
	if !strings.HasPrefix(lower, "cn=") {
		return false
	}
	if c.cfg.GroupBase != "" {
		return strings.HasSuffix(lower, ","+strings.ToLower(c.cfg.GroupBase))
	}
	return strings.Contains(lower, "ou=groups")
}

// FilterMembers keeps members containing substr (case-insensitive) and,
// with cnOnly, reduces each DN to its first RDN value.
func FilterMembers(members []string, substr string, cnOnly bool) []string {
	substr = strings.ToLower(substr)
	out := make([]string, 0, len(members))
	for _, m := range members {
		if substr != "" && !strings.Contains(strings.ToLower(m), substr) {
			continue
		}
		if cnOnly {
			m = FirstRDNValue(m)
		}
		out = append(out, m)
	}
	return out
}
