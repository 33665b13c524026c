package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okleinschmidt/pyadm/pkg/logger"
)

// Recognised section prefixes.
const (
	PrefixLDAP    = "LDAP"
	PrefixElastic = "ELASTIC"
	PrefixPVE     = "PVE"
)

var ErrNoSection = errors.New("no section")

// Candidates lists the sections whose name starts with prefix, compared
// case-insensitively, in file order.
func Candidates(s *Sections, prefix string) []string {
	upper := strings.ToUpper(prefix)
	var out []string
	for _, name := range s.Names() {
		if strings.HasPrefix(strings.ToUpper(name), upper) {
			out = append(out, name)
		}
	}
	return out
}

// Resolve picks exactly one section for prefix. Order: the requested name,
// then the bare prefix, then the first candidate in file order. A requested
// name that does not exist is not an error; the fallback is logged.
func Resolve(s *Sections, requested, prefix string) (Section, error) {
	candidates := Candidates(s, prefix)
	if len(candidates) == 0 {
		return Section{}, fmt.Errorf("%w: no %s cluster/server defined in config", ErrNoSection, strings.ToUpper(prefix))
	}

	pick := func(name string) (Section, bool) {
		for _, c := range candidates {
			if c == name {
				return s.Get(c)
			}
		}
		return Section{}, false
	}

	if requested != "" {
		if sec, ok := pick(requested); ok {
			return sec, nil
		}
	}
	sec, ok := pick(strings.ToUpper(prefix))
	if !ok {
		sec, _ = s.Get(candidates[0])
	}
	if requested != "" {
		logger.Logger.Warn("requested section not found, using fallback",
			"requested", requested, "prefix", prefix, "using", sec.Name())
	}
	return sec, nil
}
