// Package file writes files whose parent directories may not exist yet.
package file

import (
	"os"
	"path/filepath"
)

// WritePrivate writes content readable by the owner only: the file gets
// mode 0600 and missing parents 0700.
func WritePrivate(path string, content []byte) error {
	return Write(path, content, 0o700, 0o600)
}

// Write creates missing parent directories with dirPerm, then writes
// content to path. An existing file is truncated and set to perm.
func Write(path string, content []byte, dirPerm, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
