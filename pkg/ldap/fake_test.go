package ldap

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// fakeDirectory keeps entries in memory and understands the filters this
// package builds.
type fakeDirectory struct {
	mu        sync.Mutex
	entries   map[string]*ldap.Entry
	passwords map[string]string
	binds     []string
	pwChanges map[string]string
	renames   []*ldap.ModifyDNRequest
}

func newFakeDirectory(entries ...*ldap.Entry) *fakeDirectory {
	f := &fakeDirectory{
		entries:   map[string]*ldap.Entry{},
		passwords: map[string]string{},
		pwChanges: map[string]string{},
	}
	for _, e := range entries {
		f.entries[strings.ToLower(e.DN)] = e
	}
	return f
}

func entry(dn string, attrs map[string][]string) *ldap.Entry {
	return ldap.NewEntry(dn, attrs)
}

func (f *fakeDirectory) Bind(username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binds = append(f.binds, username)
	if pw, ok := f.passwords[username]; ok && pw == password {
		return nil
	}
	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (f *fakeDirectory) GSSAPIBind(ldap.GSSAPIClient, string, string) error {
	return errors.New("not supported")
}

func (f *fakeDirectory) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Scope == ldap.ScopeBaseObject {
		e, ok := f.entries[strings.ToLower(req.BaseDN)]
		if !ok {
			return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
		}
		return &ldap.SearchResult{Entries: []*ldap.Entry{e}}, nil
	}
	res := &ldap.SearchResult{}
	for _, e := range f.entries {
		if strings.HasSuffix(strings.ToLower(e.DN), strings.ToLower(req.BaseDN)) && f.matches(e, req.Filter) {
			res.Entries = append(res.Entries, e)
		}
	}
	return res, nil
}

func (f *fakeDirectory) SearchWithPaging(req *ldap.SearchRequest, _ uint32) (*ldap.SearchResult, error) {
	return f.Search(req)
}

func (f *fakeDirectory) matches(e *ldap.Entry, filter string) bool {
	for _, attr := range []string{"uid", "cn", "mail"} {
		for _, v := range e.GetAttributeValues(attr) {
			if filter == UserFilter(v) && e.GetAttributeValue("objectClass") == "person" {
				return true
			}
			if attr == "cn" && filter == GroupFilter(v) && e.GetAttributeValue("objectClass") != "person" {
				return true
			}
		}
	}
	return false
}

func (f *fakeDirectory) Add(req *ldap.AddRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(req.DN)
	if _, ok := f.entries[key]; ok {
		return ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists"))
	}
	attrs := map[string][]string{}
	for _, a := range req.Attributes {
		attrs[a.Type] = a.Vals
	}
	f.entries[key] = entry(req.DN, attrs)
	return nil
}

func (f *fakeDirectory) Del(req *ldap.DelRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(req.DN)
	if _, ok := f.entries[key]; !ok {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}
	delete(f.entries, key)
	return nil
}

func (f *fakeDirectory) Modify(req *ldap.ModifyRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[strings.ToLower(req.DN)]
	if !ok {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}
	for _, ch := range req.Changes {
		name, vals := ch.Modification.Type, ch.Modification.Vals
		attr := findAttr(e, name)
		switch ch.Operation {
		case ldap.AddAttribute:
			if attr == nil {
				e.Attributes = append(e.Attributes, &ldap.EntryAttribute{Name: name, Values: vals})
				continue
			}
			attr.Values = append(attr.Values, vals...)
		case ldap.DeleteAttribute:
			if attr == nil {
				return ldap.NewError(ldap.LDAPResultNoSuchAttribute, errors.New("no such attribute"))
			}
			kept := attr.Values[:0]
			for _, v := range attr.Values {
				if !contains(vals, v) {
					kept = append(kept, v)
				}
			}
			attr.Values = kept
		case ldap.ReplaceAttribute:
			if attr == nil {
				e.Attributes = append(e.Attributes, &ldap.EntryAttribute{Name: name, Values: vals})
				continue
			}
			attr.Values = vals
		}
	}
	return nil
}

func (f *fakeDirectory) ModifyDN(req *ldap.ModifyDNRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames = append(f.renames, req)
	return nil
}

func (f *fakeDirectory) PasswordModify(req *ldap.PasswordModifyRequest) (*ldap.PasswordModifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pwChanges[req.UserIdentity] = req.NewPassword
	return &ldap.PasswordModifyResult{}, nil
}

func (f *fakeDirectory) Close() error { return nil }

func (f *fakeDirectory) get(dn string) *ldap.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[strings.ToLower(dn)]
}

func findAttr(e *ldap.Entry, name string) *ldap.EntryAttribute {
	for _, a := range e.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
