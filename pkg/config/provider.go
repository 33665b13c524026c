package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okleinschmidt/pyadm/pkg/crypto"
)

// Provider hands out typed backend settings with sealed secrets opened.
type Provider struct {
	sections *Sections
	sealer   *crypto.Sealer
}

// NewProvider wraps sections. sealer may be nil when no key file exists;
// sealed values then fail to decode.
func NewProvider(sections *Sections, sealer *crypto.Sealer) *Provider {
	return &Provider{sections: sections, sealer: sealer}
}

func (p *Provider) Sections() *Sections {
	return p.sections
}

func (p *Provider) Resolve(requested, prefix string) (Section, error) {
	return Resolve(p.sections, requested, prefix)
}

func (p *Provider) reveal(section string, fields ...*string) error {
	for _, f := range fields {
		if !crypto.IsSealed(*f) {
			continue
		}
		if p.sealer == nil {
			return fmt.Errorf("section %s holds an encrypted value but no key file is available", section)
		}
		plain, err := p.sealer.Open(*f)
		if err != nil {
			return fmt.Errorf("section %s: %w", section, err)
		}
		*f = plain
	}
	return nil
}

func (p *Provider) LDAP(sec Section) (*LDAPConfig, error) {
	cfg := &LDAPConfig{}
	if err := decode(sec, cfg); err != nil {
		return nil, err
	}
	cfg.Section = sec.Name()
	if err := p.reveal(cfg.Section, &cfg.BindPassword); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

func (p *Provider) Elastic(sec Section) (*ElasticConfig, error) {
	cfg := &ElasticConfig{}
	if err := decode(sec, cfg); err != nil {
		return nil, err
	}
	cfg.Section = sec.Name()
	if err := p.reveal(cfg.Section, &cfg.Password); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

// PVE decodes a PVE section.
func (p *Provider) PVE(sec Section) (*PVEConfig, error) {
	cfg := &PVEConfig{}
	if err := decode(sec, cfg); err != nil {
		return nil, err
	}
	cfg.Section = sec.Name()
	if err := p.reveal(cfg.Section, &cfg.Password, &cfg.TokenValue); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

// Validate decodes every section with a recognised prefix and joins the
// errors. Sections with other prefixes are left alone.
func (p *Provider) Validate() error {
	var errs []error
	for _, name := range p.sections.Names() {
		sec, _ := p.sections.Get(name)
		var err error
		switch {
		case hasPrefix(name, PrefixLDAP):
			_, err = p.LDAP(sec)
		case hasPrefix(name, PrefixElastic):
			_, err = p.Elastic(sec)
		case hasPrefix(name, PrefixPVE):
			_, err = p.PVE(sec)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsSecretKey reports whether a key should be masked or sealed.
func IsSecretKey(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "password") || key == "token_value"
}

func hasPrefix(name, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(name), prefix)
}
