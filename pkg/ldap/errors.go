package ldap

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrBind     = errors.New("bind failed")
	// ErrNoChange is returned by batch operations where nothing succeeded.
	ErrNoChange = errors.New("no changes applied")
)
