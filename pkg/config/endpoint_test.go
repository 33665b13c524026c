package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint(t *testing.T) {
	s := mustParse(t, `
[LDAP]
server = ldaps://dc1.example.com
[LDAP_LAB]
server = ldap://lab.example.com:3389
[LDAP_BARE]
server = ldap.example.com
[ELASTIC]
hosts = https://es1.example.com:9243, https://es2.example.com:9243
[ELASTIC_URL]
url = https://search.example.com
[ELASTIC_BARE]
hosts = localhost
[PVE]
host = pve.example.com
[PVE_ALT]
host = pve2.example.com
port = 443
[PVE_BAD]
host = pve3
port = abc
[LDAP_EMPTY]
base_dn = dc=example,dc=com
[MISC]
x = 1
`)

	tests := []struct {
		section string
		want    string
		wantErr bool
	}{
		{"LDAP", "dc1.example.com:636", false},
		{"LDAP_LAB", "lab.example.com:3389", false},
		{"LDAP_BARE", "ldap.example.com:389", false},
		{"ELASTIC", "es1.example.com:9243", false},
		{"ELASTIC_URL", "search.example.com:443", false},
		{"ELASTIC_BARE", "localhost:9200", false},
		{"PVE", "pve.example.com:8006", false},
		{"PVE_ALT", "pve2.example.com:443", false},
		{"PVE_BAD", "", true},
		{"LDAP_EMPTY", "", true},
		{"MISC", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			sec, ok := s.Get(tt.section)
			require.True(t, ok)
			got, err := Endpoint(sec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
