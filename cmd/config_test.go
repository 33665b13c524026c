package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `[ELASTIC]
hosts = http://localhost:9200
username = elastic
password = changeme

[PVE]
host = pve.example.com
user = root@pam
password = secret
`

func TestConfigPath(t *testing.T) {
	path := writeConfig(t, testConfig)
	out, err := execute(t, "", "config", "path", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	t.Setenv("PYADM_CONFIG", "/etc/pyadm/env.conf")
	out, err = execute(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, "/etc/pyadm/env.conf\n", out)
}

func TestConfigList(t *testing.T) {
	path := writeConfig(t, testConfig)
	out, err := execute(t, "", "config", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Sections in "+path)
	assert.Contains(t, out, "  - ELASTIC (type: ")
	assert.Contains(t, out, "  - PVE (type: ")
	assert.Less(t, strings.Index(out, "ELASTIC"), strings.Index(out, "PVE"))
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, err := execute(t, "", "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "[ELASTIC]")
	assert.Contains(t, out, "password = ********")
	assert.NotContains(t, out, "changeme")

	out, err = execute(t, "", "config", "show", "--config", path, "--show-secrets", "--section", "PVE")
	require.NoError(t, err)
	assert.Contains(t, out, "password = secret")
	assert.NotContains(t, out, "[ELASTIC]")

	out, err = execute(t, "", "config", "show", "--config", path, "--json")
	require.NoError(t, err)
	var data map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &data))
	assert.Equal(t, "********", data["PVE"]["password"])
	assert.Equal(t, "pve.example.com", data["PVE"]["host"])

	_, err = execute(t, "", "config", "show", "--config", path, "--section", "LDAP")
	assert.ErrorIs(t, err, config.ErrNoSection)
}

func TestConfigGetSet(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, err := execute(t, "", "config", "get", "--config", path, "PVE.host")
	require.NoError(t, err)
	assert.Equal(t, "pve.example.com\n", out)

	_, err = execute(t, "", "config", "get", "--config", path, "PVE.token_name")
	assert.ErrorIs(t, err, config.ErrMissingKey)
	_, err = execute(t, "", "config", "get", "--config", path, "LDAP.server")
	assert.ErrorIs(t, err, config.ErrNoSection)
	_, err = execute(t, "", "config", "get", "--config", path, "nodot")
	assert.Error(t, err)

	out, err = execute(t, "", "config", "set", "--config", path, "LDAP_LAB.Server=ldap://lab.example.com")
	require.NoError(t, err)
	assert.Equal(t, "Set LDAP_LAB.server\n", out)

	out, err = execute(t, "", "config", "get", "--config", path, "LDAP_LAB.server")
	require.NoError(t, err)
	assert.Equal(t, "ldap://lab.example.com\n", out)
}

func TestConfigSetEncrypted(t *testing.T) {
	path := writeConfig(t, testConfig)

	_, err := execute(t, "", "config", "set", "--config", path, "--encrypt", "PVE.password=t0ps3cret")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "key"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "t0ps3cret")
	assert.Contains(t, string(raw), "ENC:")

	out, err := execute(t, "", "config", "get", "--config", path, "PVE.password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ENC:"))

	out, err = execute(t, "", "config", "get", "--config", path, "--decrypt", "PVE.password")
	require.NoError(t, err)
	assert.Equal(t, "t0ps3cret\n", out)
}

func TestConfigEncrypt(t *testing.T) {
	path := writeConfig(t, testConfig)
	out, err := execute(t, "", "config", "encrypt", "--config", path, "hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ENC:"))
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t, testConfig)
	out, err := execute(t, "", "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (2 sections")

	bad := writeConfig(t, testConfig+`
[PVE_LAB]
port = 8006

[ELASTIC_BROKEN]
hosts = http://es:9200
engine = solr
`)
	_, err = execute(t, "", "config", "validate", "--config", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PVE_LAB")
	assert.Contains(t, err.Error(), "solr")
}

func TestConfigGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "pyadm.conf")

	out, err := execute(t, "", "config", "generate", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "Example configuration written to "+path+"\n", out)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Example, string(raw))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = execute(t, "", "config", "generate", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "", "config", "generate", "--config", path, "--force")
	assert.NoError(t, err)
}
