package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

var ErrMissingKey = errors.New("missing required key")

// LDAPConfig is an LDAP* section.
type LDAPConfig struct {
	Section       string `ini:"-"`
	Server        string `ini:"server"`
	BaseDN        string `ini:"base_dn"`
	BindUsername  string `ini:"bind_username"`
	BindPassword  string `ini:"bind_password"`
	SkipTLSVerify bool   `ini:"skip_tls_verify"`
	UseStartTLS   bool   `ini:"use_starttls"`
	Timeout       int    `ini:"timeout" default:"10"`
	Auth          string `ini:"auth" default:"simple"`
	Realm         string `ini:"realm"`
	Krb5Conf      string `ini:"krb5_conf" default:"/etc/krb5.conf"`
	Krb5CCache    string `ini:"krb5_ccache"`
	SPN           string `ini:"spn"`
	GuessBindDN   bool   `ini:"guess_bind_dn"`
	UserBase      string `ini:"user_base"`
	GroupBase     string `ini:"group_base"`
	DirectoryType string `ini:"directory_type" default:"openldap"`
}

const (
	DirectoryOpenLDAP = "openldap"
	DirectoryAD       = "ad"
)

func (c *LDAPConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// IsAD reports whether the section points at Active Directory.
func (c *LDAPConfig) IsAD() bool {
	return strings.EqualFold(c.DirectoryType, DirectoryAD)
}

// GroupContainer is where new groups are created.
func (c *LDAPConfig) GroupContainer() string {
	if c.GroupBase != "" {
		return c.GroupBase
	}
	return "ou=groups," + c.BaseDN
}

func (c *LDAPConfig) validate() error {
	if err := requireKeys(c.Section, map[string]string{"server": c.Server, "base_dn": c.BaseDN}); err != nil {
		return err
	}
	switch strings.ToLower(c.DirectoryType) {
	case DirectoryOpenLDAP, DirectoryAD:
	default:
		return fmt.Errorf("section %s: unknown directory_type %q", c.Section, c.DirectoryType)
	}
	switch strings.ToLower(c.Auth) {
	case "simple", "kerberos", "gssapi":
	default:
		return fmt.Errorf("section %s: unknown auth %q", c.Section, c.Auth)
	}
	return nil
}

// ElasticConfig is an ELASTIC* section.
type ElasticConfig struct {
	Section       string `ini:"-"`
	Hosts         string `ini:"hosts"`
	URL           string `ini:"url"`
	Username      string `ini:"username"`
	Password      string `ini:"password"`
	Engine        string `ini:"engine" default:"elasticsearch"`
	VerifyCerts   bool   `ini:"verify_certs" default:"true"`
	SkipTLSVerify bool   `ini:"skip_tls_verify"`
	CACerts       string `ini:"ca_certs"`
	Timeout       int    `ini:"timeout" default:"30"`
}

// Addresses merges hosts (comma separated) and url.
func (c *ElasticConfig) Addresses() []string {
	var out []string
	for _, h := range strings.Split(c.Hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	if u := strings.TrimSpace(c.URL); u != "" {
		out = append(out, u)
	}
	return out
}

// Insecure reports whether certificate checks are off.
func (c *ElasticConfig) Insecure() bool {
	return c.SkipTLSVerify || !c.VerifyCerts
}

func (c *ElasticConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *ElasticConfig) validate() error {
	if len(c.Addresses()) == 0 {
		return fmt.Errorf("%w: section %s needs hosts or url", ErrMissingKey, c.Section)
	}
	switch strings.ToLower(c.Engine) {
	case "elasticsearch", "opensearch":
	default:
		return fmt.Errorf("section %s: unknown engine %q", c.Section, c.Engine)
	}
	return nil
}

// PVEConfig is a PVE* section.
type PVEConfig struct {
	Section    string `ini:"-"`
	Host       string `ini:"host"`
	Port       int    `ini:"port" default:"8006"`
	User       string `ini:"user" default:"root@pam"`
	Password   string `ini:"password"`
	TokenName  string `ini:"token_name"`
	TokenValue string `ini:"token_value"`
	VerifySSL  bool   `ini:"verify_ssl" default:"true"`
	Timeout    int    `ini:"timeout" default:"30"`
}

// BaseURL is the API root go-proxmox expects.
func (c *PVEConfig) BaseURL() string {
	return fmt.Sprintf("https://%s:%d/api2/json", c.Host, c.Port)
}

// TokenID is user!token_name, the form PVE expects in the auth header.
func (c *PVEConfig) TokenID() string {
	if strings.Contains(c.TokenName, "!") {
		return c.TokenName
	}
	return c.User + "!" + c.TokenName
}

func (c *PVEConfig) UsesToken() bool {
	return c.TokenName != "" && c.TokenValue != ""
}

func (c *PVEConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *PVEConfig) validate() error {
	if err := requireKeys(c.Section, map[string]string{"host": c.Host}); err != nil {
		return err
	}
	if c.Password == "" && !c.UsesToken() {
		return fmt.Errorf("%w: section %s needs password or token_name/token_value", ErrMissingKey, c.Section)
	}
	return nil
}

func requireKeys(section string, keys map[string]string) error {
	var missing []string
	for k, v := range keys {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: section %s: %s", ErrMissingKey, section, strings.Join(missing, ", "))
}

// decode applies struct defaults, then maps the section keys over them.
func decode(sec Section, v any) error {
	if err := defaults.Set(v); err != nil {
		return err
	}
	if sec.sec == nil {
		return nil
	}
	if err := sec.sec.MapTo(v); err != nil {
		return fmt.Errorf("section %s: %w", sec.Name(), err)
	}
	return nil
}

// ParseBool is the boolean reading used for CLI values: 1, true, yes and on
// (any case) are true, everything else false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ParseScalar turns a CLI value into bool, integer, float or string.
func ParseScalar(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
