// Package ldap wraps go-ldap for the directory lookups and account
// maintenance behind `pyadm ldap`.
package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/logger"
)

// Conn is the part of *ldap.Conn this package needs.
type Conn interface {
	Bind(username, password string) error
	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Del(req *ldap.DelRequest) error
	Modify(req *ldap.ModifyRequest) error
	ModifyDN(req *ldap.ModifyDNRequest) error
	PasswordModify(req *ldap.PasswordModifyRequest) (*ldap.PasswordModifyResult, error)
	Close() error
}

const pageSize = 1000

// noAttributes asks the server for the DN only (RFC 4511 4.5.1.8).
var noAttributes = []string{"1.1"}

var (
	DefaultUserAttributes  = []string{"cn", "mail", "memberOf"}
	DefaultGroupAttributes = []string{"cn", "description", "member"}
)

type Client struct {
	conn Conn
	cfg  *config.LDAPConfig
}

// Dial connects to the configured server and binds. password overrides
// bind_password from the section when non-empty.
func Dial(ctx context.Context, cfg *config.LDAPConfig, password string) (*Client, error) {
	conn, err := open(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, cfg: cfg}
	if password == "" {
		password = cfg.BindPassword
	}
	if err := c.bind(ctx, password); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// NewWithConn wraps an already bound connection.
func NewWithConn(conn Conn, cfg *config.LDAPConfig) *Client {
	return &Client{conn: conn, cfg: cfg}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func open(cfg *config.LDAPConfig) (*ldap.Conn, error) {
	server := cfg.Server
	if !strings.Contains(server, "://") {
		server = "ldap://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid LDAP server %q: %w", cfg.Server, err)
	}
	tlsCfg := &tls.Config{
		ServerName:         u.Hostname(),
		InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // opt-in per section
	}

	logger.Logger.Debug("connecting to LDAP", "section", cfg.Section, "url", server, "starttls", cfg.UseStartTLS)
	var conn *ldap.Conn
	if u.Scheme == "ldaps" {
		conn, err = ldap.DialURL(server, ldap.DialWithTLSConfig(tlsCfg))
	} else {
		conn, err = ldap.DialURL(server)
		if err == nil && cfg.UseStartTLS {
			if err = conn.StartTLS(tlsCfg); err != nil {
				conn.Close()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", server, err)
	}
	conn.SetTimeout(cfg.TimeoutDuration())
	return conn, nil
}

func (c *Client) baseFor(override string) string {
	if override != "" {
		return override
	}
	return c.cfg.BaseDN
}

func (c *Client) search(base, filter string, attrs []string) ([]*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		base,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attrs,
		nil,
	)
	logger.Logger.Debug("LDAP search", "base", base, "filter", filter, "attributes", attrs)
	res, err := c.conn.SearchWithPaging(req, pageSize)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", filter, err)
	}
	return res.Entries, nil
}

// read fetches one entry by DN.
func (c *Client) read(dn string, attrs []string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)", attrs, nil)
	res, err := c.conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dn)
		}
		return nil, fmt.Errorf("read %s: %w", dn, err)
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dn)
	}
	return res.Entries[0], nil
}

// SetAttribute replaces attr on dn with value.
func (c *Client) SetAttribute(dn, attr, value string) error {
	req := ldap.NewModifyRequest(dn, nil)
	req.Replace(attr, []string{value})
	if err := c.conn.Modify(req); err != nil {
		return fmt.Errorf("set %s on %s: %w", attr, dn, err)
	}
	return nil
}

// Move puts dn under newParent, keeping its RDN, and returns the new DN.
func (c *Client) Move(dn, newParent string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 {
		return "", fmt.Errorf("invalid DN %q", dn)
	}
	rdn := rdnString(parsed.RDNs[0])
	req := ldap.NewModifyDNRequest(dn, rdn, true, newParent)
	if err := c.conn.ModifyDN(req); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", dn, newParent, err)
	}
	return rdn + "," + newParent, nil
}

// Rename changes the cn of dn in place and returns the new DN.
func (c *Client) Rename(dn, newCN string) (string, error) {
	rdn := "cn=" + ldap.EscapeDN(newCN)
	req := ldap.NewModifyDNRequest(dn, rdn, true, "")
	if err := c.conn.ModifyDN(req); err != nil {
		return "", fmt.Errorf("rename %s to %s: %w", dn, newCN, err)
	}
	if parent := parentDN(dn); parent != "" {
		return rdn + "," + parent, nil
	}
	return rdn, nil
}

func rdnString(rdn *ldap.RelativeDN) string {
	parts := make([]string, len(rdn.Attributes))
	for i, a := range rdn.Attributes {
		parts[i] = a.Type + "=" + ldap.EscapeDN(a.Value)
	}
	return strings.Join(parts, "+")
}

// LooksLikeDN reports whether s is written as a DN rather than a name.
func LooksLikeDN(s string) bool {
	return strings.Contains(strings.ToLower(s), "dc=") && strings.Contains(s, ",")
}

// parentDN strips the first RDN.
func parentDN(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) < 2 {
		return ""
	}
	parts := make([]string, 0, len(parsed.RDNs)-1)
	for _, rdn := range parsed.RDNs[1:] {
		parts = append(parts, rdnString(rdn))
	}
	return strings.Join(parts, ",")
}

// FirstRDNValue returns "jdoe" for "cn=jdoe,ou=people,dc=example,dc=com".
func FirstRDNValue(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return dn
	}
	return parsed.RDNs[0].Attributes[0].Value
}
