package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/okleinschmidt/pyadm/pkg/utils/file"
	"gopkg.in/ini.v1"
)

var ErrNoConfigFile = errors.New("config file not found")

// Store loads and persists the INI file backing every section.
type Store interface {
	Load() (*Sections, error)
	Save(s *Sections) error
	Path() string
}

type defaultStore struct {
	path string
}

func NewDefaultStore(path string) Store {
	return &defaultStore{path: path}
}

func (s *defaultStore) Path() string {
	return s.path
}

func (s *defaultStore) Load() (*Sections, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run 'pyadm config generate')", ErrNoConfigFile, s.path)
		}
		return nil, err
	}
	sections, err := ParseSections(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return sections, nil
}

// Save rewrites the whole file. Mode 0600 because sections hold passwords.
func (s *defaultStore) Save(sections *Sections) error {
	var buf bytes.Buffer
	if _, err := sections.file.WriteTo(&buf); err != nil {
		return err
	}
	return file.WritePrivate(s.path, buf.Bytes())
}

// Sections is the parsed file. Order follows the file.
type Sections struct {
	file *ini.File
}

// ParseSections parses INI text. Key names are case-insensitive, section
// names are kept as written.
func ParseSections(data []byte) (*Sections, error) {
	f, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, data)
	if err != nil {
		return nil, err
	}
	return &Sections{file: f}, nil
}

func (s *Sections) Names() []string {
	var names []string
	for _, sec := range s.file.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		names = append(names, sec.Name())
	}
	return names
}

func (s *Sections) Get(name string) (Section, bool) {
	if name == "" || name == ini.DefaultSection {
		return Section{}, false
	}
	sec, err := s.file.GetSection(name)
	if err != nil {
		return Section{}, false
	}
	return Section{sec: sec}, true
}

// Set writes key=value into section, creating the section when missing.
func (s *Sections) Set(section, key, value string) {
	s.file.Section(section).Key(strings.ToLower(key)).SetValue(value)
}

// Count returns the number of sections and the number of options over all of them.
func (s *Sections) Count() (sections, options int) {
	for _, name := range s.Names() {
		sec, _ := s.Get(name)
		sections++
		options += len(sec.Keys())
	}
	return sections, options
}

// Section is one named group of settings.
type Section struct {
	sec *ini.Section
}

func (s Section) Name() string {
	if s.sec == nil {
		return ""
	}
	return s.sec.Name()
}

func (s Section) Get(key string) (string, bool) {
	if s.sec == nil || !s.sec.HasKey(strings.ToLower(key)) {
		return "", false
	}
	return s.sec.Key(strings.ToLower(key)).String(), true
}

// Keys lists option names in file order.
func (s Section) Keys() []string {
	if s.sec == nil {
		return nil
	}
	return s.sec.KeyStrings()
}

func (s Section) Map() map[string]string {
	out := make(map[string]string)
	for _, k := range s.Keys() {
		out[k], _ = s.Get(k)
	}
	return out
}

// Kind is the backend family a section belongs to. Known families match by
// prefix the same way sections are resolved, so LDAPPROD is an LDAP section.
// Other names fall back to the part before the first underscore.
func (s Section) Kind() string {
	return Kind(s.Name())
}

func Kind(name string) string {
	for _, prefix := range []string{PrefixLDAP, PrefixElastic, PrefixPVE} {
		if hasPrefix(name, prefix) {
			return prefix
		}
	}
	kind, _, _ := strings.Cut(name, "_")
	return strings.ToUpper(kind)
}
