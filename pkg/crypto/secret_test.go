package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := KeyFile(filepath.Join(t.TempDir(), "pyadm", "key"))
	require.NoError(t, err)
	s, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := s.Seal("s3cret")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)

	again, err := s.Seal("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")
}

func TestReveal(t *testing.T) {
	s, err := NewSealer(make([]byte, KeySize))
	require.NoError(t, err)

	got, err := s.Reveal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", got)

	_, err = s.Open("plain")
	assert.ErrorIs(t, err, ErrNotSealed)

	_, err = s.Reveal(Prefix + "!!notbase64")
	assert.Error(t, err)
}

func TestKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")

	_, err := ExistingKeyFile(path)
	assert.True(t, os.IsNotExist(err))

	first, err := KeyFile(path)
	require.NoError(t, err)
	second, err := KeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))
	_, err = KeyFile(path)
	assert.Error(t, err)
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	_, err := NewSealer([]byte("too short"))
	assert.Error(t, err)
}
