package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint returns the host:port a section talks to, read from the raw
// keys so encrypted secrets need not be opened.
func Endpoint(sec Section) (string, error) {
	name := sec.Name()
	switch {
	case hasPrefix(name, PrefixLDAP):
		server, _ := sec.Get("server")
		return hostPort(name, server, map[string]string{"ldap": "389", "ldaps": "636"}, "389")
	case hasPrefix(name, PrefixElastic):
		addr := ""
		if hosts, ok := sec.Get("hosts"); ok {
			addr, _, _ = strings.Cut(hosts, ",")
		}
		if strings.TrimSpace(addr) == "" {
			addr, _ = sec.Get("url")
		}
		return hostPort(name, addr, map[string]string{"http": "80", "https": "443"}, "9200")
	case hasPrefix(name, PrefixPVE):
		host, _ := sec.Get("host")
		if host == "" {
			return "", fmt.Errorf("%w: section %s needs host", ErrMissingKey, name)
		}
		port := "8006"
		if p, ok := sec.Get("port"); ok && p != "" {
			if _, err := strconv.Atoi(p); err != nil {
				return "", fmt.Errorf("section %s: invalid port %q", name, p)
			}
			port = p
		}
		return net.JoinHostPort(host, port), nil
	}
	return "", fmt.Errorf("section %s is not an LDAP, ELASTIC or PVE section", name)
}

// hostPort reads a URL or a bare host[:port]. Schemes pick their default
// port; bare hosts get fallback.
func hostPort(section, raw string, schemes map[string]string, fallback string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: section %s has no address", ErrMissingKey, section)
	}
	if !strings.Contains(raw, "://") {
		if _, _, err := net.SplitHostPort(raw); err == nil {
			return raw, nil
		}
		return net.JoinHostPort(raw, fallback), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("section %s: %w", section, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("section %s: no host in %q", section, raw)
	}
	port := u.Port()
	if port == "" {
		if port = schemes[strings.ToLower(u.Scheme)]; port == "" {
			port = fallback
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
