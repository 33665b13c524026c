package crypto

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/okleinschmidt/pyadm/pkg/utils/file"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// KeyFile returns the key stored at path, creating a fresh random key (mode
// 0600, parent 0700) when the file does not exist yet.
func KeyFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(key) != KeySize {
			return nil, fmt.Errorf("key file %s: expected %d bytes, got %d", path, KeySize, len(key))
		}
		return key, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key = make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := file.WritePrivate(path, key); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

// ExistingKeyFile is KeyFile without the create step. Reading a config
// must never mint a key that nothing was sealed with.
func ExistingKeyFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key file %s: expected %d bytes, got %d", path, KeySize, len(key))
	}
	return key, nil
}
