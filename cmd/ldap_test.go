package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/okleinschmidt/pyadm/pkg/ldap"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []ldap.Record {
	return []ldap.Record{
		{
			DN: "uid=jdoe,ou=people,dc=example,dc=com",
			Attributes: map[string][]string{
				"mail":     {"jdoe@example.com"},
				"cn":       {"John Doe"},
				"memberOf": {"cn=dev,ou=groups,dc=example,dc=com", "cn=ops,ou=groups,dc=example,dc=com"},
			},
		},
		{
			DN:         "uid=asmith,ou=people,dc=example,dc=com",
			Attributes: map[string][]string{"cn": {"Anna Smith"}, "telephoneNumber": {"1234"}},
		},
	}
}

func TestPrintRecordsText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, sampleRecords(), output.Text))
	want := `dn: uid=jdoe,ou=people,dc=example,dc=com
cn: John Doe
mail: jdoe@example.com
memberOf:
 - cn=dev,ou=groups,dc=example,dc=com
 - cn=ops,ou=groups,dc=example,dc=com

dn: uid=asmith,ou=people,dc=example,dc=com
cn: Anna Smith
telephoneNumber: 1234
`
	assert.Equal(t, want, buf.String())
}

func TestPrintRecordsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, sampleRecords(), output.CSV))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, "dn,cn,mail,memberOf,telephoneNumber", string(lines[0]))
	assert.Contains(t, string(lines[2]), "Anna Smith")
}

func TestPrintRecordsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, sampleRecords(), output.JSON))
	var got []ldap.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleRecords(), got)
}

func TestPrintList(t *testing.T) {
	groups := []string{"dev", "ops"}

	var buf bytes.Buffer
	require.NoError(t, printList(&buf, "user", "jdoe", groups, output.Text))
	assert.Equal(t, "jdoe:\n - dev\n - ops\n", buf.String())

	buf.Reset()
	require.NoError(t, printList(&buf, "user", "jdoe", groups, output.JSON))
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "jdoe", got["user"])
	assert.Equal(t, []any{"dev", "ops"}, got["values"])
}

func TestAttributeList(t *testing.T) {
	assert.Equal(t, []string{"*"}, attributeList(true, "mail"))
	assert.Nil(t, attributeList(false, ""))
	assert.Equal(t, []string{"mail", "cn"}, attributeList(false, "mail, cn"))
}

func TestLDAPUserValidation(t *testing.T) {
	path := writeConfig(t, "[LDAP]\nserver = ldap://127.0.0.1:1\nbase_dn = dc=example,dc=com\n")

	_, err := execute(t, "", "ldap", "--config", path, "user", "jdoe", "--set-expiry", "31.12.2025")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")

	_, err = execute(t, "", "ldap", "--config", path, "user", "jdoe", "--set-attribute", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")

	_, err = execute(t, "", "ldap", "--config", path, "groups", "team", "--delete", "--add-member", "jdoe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--delete cannot be combined")
}

func TestLDAPNoSection(t *testing.T) {
	path := writeConfig(t, "[PVE]\nhost = pve\npassword = x\n")
	_, err := execute(t, "", "ldap", "--config", path, "user-exists", "jdoe")
	assert.Error(t, err)
}
