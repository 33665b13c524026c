package ldap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	"github.com/okleinschmidt/pyadm/pkg/logger"
)

func (c *Client) bind(ctx context.Context, password string) error {
	switch strings.ToLower(c.cfg.Auth) {
	case "kerberos", "gssapi":
		return c.kerberosBind(password)
	}

	if c.cfg.BindUsername == "" {
		logger.Logger.Debug("no bind_username, staying anonymous", "section", c.cfg.Section)
		return nil
	}
	err := c.conn.Bind(c.cfg.BindUsername, password)
	if err == nil {
		return nil
	}
	if !c.cfg.GuessBindDN || !strings.Contains(c.cfg.BindUsername, "@") || !isInvalidCredentials(err) {
		return fmt.Errorf("%w as %s: %w", ErrBind, c.cfg.BindUsername, err)
	}

	for _, dn := range GuessBindDNs(c.cfg.BindUsername, c.cfg.BaseDN) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Logger.Debug("trying bind DN", "dn", dn)
		if err2 := c.conn.Bind(dn, password); err2 == nil {
			logger.Logger.Info("bound with guessed DN", "dn", dn)
			return nil
		}
	}
	return fmt.Errorf("%w as %s: %w", ErrBind, c.cfg.BindUsername, err)
}

func isInvalidCredentials(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials)
}

// GuessBindDNs turns "jdoe@example.com" into the DNs a directory commonly
// files that user under.
func GuessBindDNs(username, baseDN string) []string {
	local, _, _ := strings.Cut(username, "@")
	local = ldap.EscapeDN(local)
	return []string{
		fmt.Sprintf("uid=%s,ou=people,%s", local, baseDN),
		fmt.Sprintf("cn=%s,ou=users,%s", local, baseDN),
		fmt.Sprintf("cn=%s,cn=Users,%s", local, baseDN),
		fmt.Sprintf("uid=%s,%s", local, baseDN),
	}
}

func (c *Client) kerberosBind(password string) error {
	gc, err := c.gssapiClient(password)
	if err != nil {
		return fmt.Errorf("%w: kerberos: %w", ErrBind, err)
	}
	defer func() { _ = gc.DeleteSecContext() }()

	spn, err := c.servicePrincipal()
	if err != nil {
		return err
	}
	logger.Logger.Debug("GSSAPI bind", "spn", spn, "realm", c.cfg.Realm)
	if err := c.conn.GSSAPIBind(gc, spn, ""); err != nil {
		return fmt.Errorf("%w: GSSAPI: %w", ErrBind, err)
	}
	return nil
}

// gssapiClient prefers a credential cache and falls back to the password.
func (c *Client) gssapiClient(password string) (*gssapi.Client, error) {
	if _, err := os.Stat(c.cfg.Krb5Conf); err != nil {
		return nil, fmt.Errorf("krb5_conf %s: %w", c.cfg.Krb5Conf, err)
	}
	if ccache := ccachePath(c.cfg.Krb5CCache); ccache != "" {
		if _, err := os.Stat(ccache); err == nil {
			return gssapi.NewClientFromCCache(ccache, c.cfg.Krb5Conf, krb5client.DisablePAFXFAST(true))
		}
	}

	user, realm := c.cfg.BindUsername, c.cfg.Realm
	if u, r, ok := strings.Cut(user, "@"); ok {
		user = u
		if realm == "" {
			realm = strings.ToUpper(r)
		}
	}
	switch {
	case user == "" || password == "":
		return nil, errors.New("no credential cache and no username/password")
	case realm == "":
		return nil, errors.New("realm is required for password based kerberos")
	}
	return gssapi.NewClientWithPassword(user, realm, password, c.cfg.Krb5Conf, krb5client.DisablePAFXFAST(true))
}

func ccachePath(configured string) string {
	if configured != "" {
		return strings.TrimPrefix(configured, "FILE:")
	}
	if env := os.Getenv("KRB5CCNAME"); env != "" {
		return strings.TrimPrefix(env, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func (c *Client) servicePrincipal() (string, error) {
	if c.cfg.SPN != "" {
		return c.cfg.SPN, nil
	}
	server := c.cfg.Server
	if !strings.Contains(server, "://") {
		server = "ldap://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("cannot derive SPN from server %q", c.cfg.Server)
	}
	return "ldap/" + u.Hostname(), nil
}
