package ldap

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/okleinschmidt/pyadm/pkg/logger"
)

// UserFilter matches name against uid, cn and mail.
func UserFilter(name string) string {
	v := ldap.EscapeFilter(name)
	return fmt.Sprintf("(|(uid=%s)(cn=%s)(mail=%s))", v, v, v)
}

// FindUsers searches for name. attrs nil means the default user attributes.
func (c *Client) FindUsers(name string, attrs []string) ([]Record, error) {
	if len(attrs) == 0 {
		attrs = DefaultUserAttributes
	}
	entries, err := c.search(c.baseFor(c.cfg.UserBase), UserFilter(name), attrs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no user found with UID '%s'", ErrNotFound, name)
	}
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = NewRecord(e)
	}
	return out, nil
}

// UserDN resolves name to the DN of the first matching user.
func (c *Client) UserDN(name string) (string, error) {
	if LooksLikeDN(name) {
		return name, nil
	}
	entries, err := c.search(c.baseFor(c.cfg.UserBase), UserFilter(name), noAttributes)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no user found with UID '%s'", ErrNotFound, name)
	}
	return entries[0].DN, nil
}

func (c *Client) UserExists(name string) (bool, error) {
	_, err := c.UserDN(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// UserGroups returns the memberOf values of the user.
func (c *Client) UserGroups(name string) ([]string, error) {
	users, err := c.FindUsers(name, []string{"memberOf"})
	if err != nil {
		return nil, err
	}
	var groups []string
	for _, u := range users {
		for k, v := range u.Attributes {
			if strings.EqualFold(k, "memberOf") {
				groups = append(groups, v...)
			}
		}
	}
	slices.Sort(groups)
	return groups, nil
}

// SetPassword sets the password of the user. OpenLDAP gets the password
// modify extended operation, AD a unicodePwd replace.
func (c *Client) SetPassword(name, password string) error {
	dn, err := c.UserDN(name)
	if err != nil {
		return err
	}
	if c.cfg.IsAD() {
		req := ldap.NewModifyRequest(dn, nil)
		req.Replace("unicodePwd", []string{EncodeADPassword(password)})
		if err := c.conn.Modify(req); err != nil {
			return fmt.Errorf("set password for %s: %w", dn, err)
		}
		return nil
	}
	if _, err := c.conn.PasswordModify(ldap.NewPasswordModifyRequest(dn, "", password)); err != nil {
		return fmt.Errorf("set password for %s: %w", dn, err)
	}
	return nil
}

// ResetPassword sets a random 16 character password and returns it.
func (c *Client) ResetPassword(name string) (string, error) {
	pw, err := RandomPassword(16)
	if err != nil {
		return "", err
	}
	return pw, c.SetPassword(name, pw)
}

func (c *Client) ForcePasswordChange(name string) error {
	return c.setUserAttribute(name, "pwdLastSet", "0")
}

func (c *Client) Enable(name string) error {
	return c.setUserAttribute(name, "userAccountControl", "512")
}

func (c *Client) Disable(name string) error {
	return c.setUserAttribute(name, "userAccountControl", "514")
}

func (c *Client) Lock(name string) error {
	return c.setUserAttribute(name, "lockoutTime", "1")
}

func (c *Client) Unlock(name string) error {
	return c.setUserAttribute(name, "lockoutTime", "0")
}

// SetExpiry sets accountExpires from a YYYY-MM-DD date.
func (c *Client) SetExpiry(name, date string) error {
	ts, err := ADTimestamp(date)
	if err != nil {
		return err
	}
	return c.setUserAttribute(name, "accountExpires", ts)
}

func (c *Client) SetUserAttribute(name, attr, value string) error {
	return c.setUserAttribute(name, attr, value)
}

func (c *Client) setUserAttribute(name, attr, value string) error {
	dn, err := c.UserDN(name)
	if err != nil {
		return err
	}
	return c.SetAttribute(dn, attr, value)
}

func (c *Client) MoveUser(name, newParent string) (string, error) {
	dn, err := c.UserDN(name)
	if err != nil {
		return "", err
	}
	return c.Move(dn, newParent)
}

// operational and per-object attributes that must not be copied on clone
var cloneSkip = map[string]bool{
	"dn": true, "cn": true, "uid": true, "samaccountname": true, "userprincipalname": true,
	"objectsid": true, "objectguid": true, "whencreated": true, "whenchanged": true,
	"usncreated": true, "usnchanged": true, "distinguishedname": true, "name": true,
	"memberof": true, "userpassword": true, "unicodepwd": true, "pwdlastset": true,
	"lastlogon": true, "lastlogontimestamp": true, "logoncount": true, "badpwdcount": true,
	"badpasswordtime": true, "lockouttime": true, "objectcategory": true,
	"instancetype": true, "dscorepropagationdata": true, "primarygroupid": true,
	"entryuuid": true, "entrycsn": true, "createtimestamp": true, "modifytimestamp": true,
	"creatorsname": true, "modifiersname": true, "structuralobjectclass": true,
	"entrydn": true, "subschemasubentry": true, "hassubordinates": true,
}

// CloneUser copies the user into a sibling entry named newCN. Group
// memberships and credentials are not copied.
func (c *Client) CloneUser(name, newCN string) (string, error) {
	dn, err := c.UserDN(name)
	if err != nil {
		return "", err
	}
	src, err := c.read(dn, []string{"*"})
	if err != nil {
		return "", err
	}
	parent := parentDN(dn)
	if parent == "" {
		return "", fmt.Errorf("cannot clone %s: no parent", dn)
	}
	newDN := fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(newCN), parent)

	req := ldap.NewAddRequest(newDN, nil)
	hasUID := false
	for _, a := range src.Attributes {
		lower := strings.ToLower(a.Name)
		if lower == "uid" {
			hasUID = true
		}
		if cloneSkip[lower] || len(a.Values) == 0 {
			continue
		}
		req.Attribute(a.Name, a.Values)
	}
	req.Attribute("cn", []string{newCN})
	if c.cfg.IsAD() {
		req.Attribute("sAMAccountName", []string{newCN})
	} else if hasUID {
		req.Attribute("uid", []string{newCN})
	}
	if err := c.conn.Add(req); err != nil {
		return "", fmt.Errorf("clone %s to %s: %w", dn, newDN, err)
	}
	return newDN, nil
}

// AddToGroups adds the user to each group and returns how many succeeded.
// Failures are logged and skipped.
func (c *Client) AddToGroups(name string, groups []string) (int, error) {
	return c.changeGroups(name, groups, true)
}

func (c *Client) RemoveFromGroups(name string, groups []string) (int, error) {
	return c.changeGroups(name, groups, false)
}

func (c *Client) changeGroups(name string, groups []string, add bool) (int, error) {
	userDN, err := c.UserDN(name)
	if err != nil {
		return 0, err
	}
	ok := 0
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		groupDN, err := c.GroupDN(g)
		if err == nil {
			err = c.modifyMember(groupDN, userDN, add)
		}
		if err != nil {
			logger.Logger.Warn("group membership change failed", "user", name, "group", g, "error", err)
			continue
		}
		ok++
	}
	if ok == 0 && len(groups) > 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoChange, name)
	}
	return ok, nil
}
