package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/ldap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultRows(t *testing.T, res *mcp.CallToolResult) []map[string]any {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &rows))
	return rows
}

func TestMCPOfflinePVE(t *testing.T) {
	b := newMCPBackends(nil, true, 2)
	defer b.Close()
	ctx := context.Background()

	res, _, err := b.pveNodes(ctx, nil, PVENodesInput{})
	require.NoError(t, err)
	assert.Len(t, resultRows(t, res), 3)

	res, _, err = b.pveVMs(ctx, nil, PVEVMsInput{Node: "node1", Templates: true})
	require.NoError(t, err)
	var names []string
	for _, r := range resultRows(t, res) {
		names = append(names, r["name"].(string))
	}
	assert.ElementsMatch(t, []string{"sample-vm1", "sample-vm2", "debian-12-template"}, names)

	// The offline client is built once.
	assert.Equal(t, 1, b.pve.Len())
}

func TestMCPWithoutConfig(t *testing.T) {
	b := newMCPBackends(nil, true, 1)
	ctx := context.Background()

	_, _, err := b.elasticIndices(ctx, nil, ElasticIndicesInput{})
	assert.ErrorIs(t, err, config.ErrNoConfigFile)
	_, _, err = b.ldapUser(ctx, nil, LDAPUserInput{Name: "jdoe"})
	assert.ErrorIs(t, err, config.ErrNoConfigFile)
	_, _, err = b.ldapUser(ctx, nil, LDAPUserInput{})
	assert.EqualError(t, err, "name is required")
}

func TestMCPServerSession(t *testing.T) {
	ctx := context.Background()
	b := newMCPBackends(nil, true, 1)
	server := newMCPServer(b)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"elastic_indices", "elastic_health", "pve_nodes", "pve_vms", "ldap_user"}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "pve_vms", Arguments: map[string]any{"node": "node2"}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	rows := resultRows(t, res)
	require.Len(t, rows, 1)
	assert.Equal(t, "sample-vm3", rows[0]["name"])
}

// failingConn answers every search with err.
type failingConn struct {
	ldap.Conn
	err    error
	closed bool
}

func (c *failingConn) SearchWithPaging(*goldap.SearchRequest, uint32) (*goldap.SearchResult, error) {
	return nil, c.err
}

func (c *failingConn) Close() error {
	c.closed = true
	return nil
}

func TestMCPDropsBrokenLDAPConnection(t *testing.T) {
	sections, err := config.ParseSections([]byte("[LDAP]\nserver = ldap://127.0.0.1:1\nbase_dn = dc=example,dc=com\n"))
	require.NoError(t, err)
	provider := config.NewProvider(sections, nil)
	sec, err := provider.Resolve("", config.PrefixLDAP)
	require.NoError(t, err)
	cfg, err := provider.LDAP(sec)
	require.NoError(t, err)

	tests := []struct {
		name   string
		err    error
		cached bool
	}{
		{"network", goldap.NewError(goldap.ErrorNetwork, errors.New("ldap: connection closed")), false},
		{"no such object", goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("no such object")), true},
		{"plain", errors.New("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newMCPBackends(provider, false, 1)
			conn := &failingConn{err: tt.err}
			b.ldap.Set("LDAP", ldap.NewWithConn(conn, cfg))

			_, _, err := b.ldapUser(context.Background(), nil, LDAPUserInput{Name: "jdoe"})
			require.Error(t, err)

			_, ok := b.ldap.Get("LDAP")
			assert.Equal(t, tt.cached, ok)
			assert.Equal(t, !tt.cached, conn.closed)
		})
	}
}
