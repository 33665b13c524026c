package cmd

import (
	"bytes"
	"context"
	"errors"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/cmd/version"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/elastic"
	"github.com/okleinschmidt/pyadm/pkg/ldap"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/okleinschmidt/pyadm/pkg/pve"
	"github.com/okleinschmidt/pyadm/pkg/utils/concurrent"
	"github.com/spf13/cobra"
)

const offlineKey = "offline"

type ElasticIndicesInput struct {
	Section string `json:"section,omitempty" jsonschema:"ELASTIC section, default ELASTIC"`
	Pattern string `json:"pattern,omitempty" jsonschema:"wildcard pattern, * is appended when missing"`
	Limit   int    `json:"limit,omitempty" jsonschema:"keep the N newest names"`
}

type ElasticHealthInput struct {
	Section string `json:"section,omitempty" jsonschema:"ELASTIC section, default ELASTIC"`
}

type PVENodesInput struct {
	Section string `json:"section,omitempty" jsonschema:"PVE section, default PVE"`
}

type PVEVMsInput struct {
	Section   string `json:"section,omitempty" jsonschema:"PVE section, default PVE"`
	Node      string `json:"node,omitempty" jsonschema:"only this node"`
	Templates bool   `json:"templates,omitempty" jsonschema:"include templates"`
}

type LDAPUserInput struct {
	Section    string   `json:"section,omitempty" jsonschema:"LDAP section, default LDAP"`
	Name       string   `json:"name" jsonschema:"uid, cn or mail of the user"`
	Attributes []string `json:"attributes,omitempty" jsonschema:"attributes to return, default cn, mail and memberOf"`
}

// mcpBackends serves the tools. Clients are built on first use per section
// and kept for the lifetime of the server. An LDAP connection that fails
// with a network error is dropped and redialed on the next call.
type mcpBackends struct {
	provider *config.Provider
	offline  bool
	parallel int

	elastic *concurrent.Map[*elastic.Client]
	pve     *concurrent.Map[*pve.Client]
	ldap    *concurrent.Map[*ldap.Client]
}

func newMCPBackends(provider *config.Provider, offline bool, parallel int) *mcpBackends {
	return &mcpBackends{
		provider: provider,
		offline:  offline,
		parallel: max(parallel, 1),
		elastic:  concurrent.NewMap[*elastic.Client](),
		pve:      concurrent.NewMap[*pve.Client](),
		ldap:     concurrent.NewMap[*ldap.Client](),
	}
}

func NewCmdMCP() *cobra.Command {
	var offline bool
	var parallel int
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve read-only tools over the Model Context Protocol on stdio",
		Long: `Run an MCP server on stdin/stdout exposing read-only tools:
elastic_indices, elastic_health, pve_nodes, pve_vms and ldap_user.
Every tool takes an optional "section" argument. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _, err := utils.LoadProvider(cmd)
			if err != nil {
				if !offline || !errors.Is(err, config.ErrNoConfigFile) {
					return err
				}
				provider = nil
			}
			b := newMCPBackends(provider, offline, parallel)
			defer b.Close()

			server := newMCPServer(b)
			logger.Logger.Info("serving MCP on stdio", "offline", offline)
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Answer PVE tools from the built-in sample cluster")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Number of PVE nodes queried at once")
	return cmd
}

func newMCPServer(b *mcpBackends) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "pyadm", Version: version.Version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "elastic_indices",
		Description: "List the user indices of an Elasticsearch/OpenSearch cluster, sorted by name",
	}, b.elasticIndices)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "elastic_health",
		Description: "Show the cluster health of an Elasticsearch/OpenSearch cluster",
	}, b.elasticHealth)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pve_nodes",
		Description: "List the nodes of a Proxmox VE cluster",
	}, b.pveNodes)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pve_vms",
		Description: "List the virtual machines of a Proxmox VE cluster across online nodes",
	}, b.pveVMs)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ldap_user",
		Description: "Look up a user in LDAP or Active Directory by uid, cn or mail",
	}, b.ldapUser)
	return server
}

// Close unbinds the cached LDAP connections.
func (b *mcpBackends) Close() {
	b.ldap.Range(func(section string, c *ldap.Client) bool {
		if err := c.Close(); err != nil {
			logger.Logger.Debug("closing LDAP connection", "section", section, "error", err)
		}
		return true
	})
}

func (b *mcpBackends) section(requested, prefix string) (config.Section, error) {
	if b.provider == nil {
		return config.Section{}, config.ErrNoConfigFile
	}
	return b.provider.Resolve(requested, prefix)
}

func (b *mcpBackends) elasticClient(requested string) (*elastic.Client, error) {
	sec, err := b.section(requested, config.PrefixElastic)
	if err != nil {
		return nil, err
	}
	return b.elastic.GetOrCreate(sec.Name(), func() (*elastic.Client, error) {
		cfg, err := b.provider.Elastic(sec)
		if err != nil {
			return nil, err
		}
		return elastic.New(cfg)
	})
}

func (b *mcpBackends) pveClient(requested string) (*pve.Client, error) {
	if b.offline {
		return b.pve.GetOrCreate(offlineKey, func() (*pve.Client, error) {
			return pve.NewClient(pve.NewOffline(), b.parallel), nil
		})
	}
	sec, err := b.section(requested, config.PrefixPVE)
	if err != nil {
		return nil, err
	}
	return b.pve.GetOrCreate(sec.Name(), func() (*pve.Client, error) {
		cfg, err := b.provider.PVE(sec)
		if err != nil {
			return nil, err
		}
		return pve.NewClient(pve.Connect(cfg), b.parallel), nil
	})
}

func (b *mcpBackends) ldapClient(ctx context.Context, requested string) (string, *ldap.Client, error) {
	sec, err := b.section(requested, config.PrefixLDAP)
	if err != nil {
		return "", nil, err
	}
	c, err := b.ldap.GetOrCreate(sec.Name(), func() (*ldap.Client, error) {
		cfg, err := b.provider.LDAP(sec)
		if err != nil {
			return nil, err
		}
		return ldap.Dial(ctx, cfg, "")
	})
	return sec.Name(), c, err
}

// dropLDAP evicts the cached connection of section when err is a network
// error. Anything else leaves the connection in place.
func (b *mcpBackends) dropLDAP(section string, err error) {
	var lerr *goldap.Error
	if !errors.As(err, &lerr) || lerr.ResultCode != goldap.ErrorNetwork {
		return
	}
	c, ok := b.ldap.Remove(section)
	if !ok || c == nil {
		return
	}
	logger.Logger.Warn("dropping LDAP connection", "section", section, "error", err)
	_ = c.Close()
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	var buf bytes.Buffer
	if err := output.Dump(&buf, v, output.JSON); err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: buf.String()}}}, nil, nil
}

func (b *mcpBackends) elasticIndices(ctx context.Context, _ *mcp.CallToolRequest, in ElasticIndicesInput) (*mcp.CallToolResult, any, error) {
	c, err := b.elasticClient(in.Section)
	if err != nil {
		return nil, nil, err
	}
	var rows []map[string]any
	if in.Pattern != "" {
		rows, err = c.Matching(ctx, in.Pattern)
	} else {
		rows, err = c.Indices(ctx)
	}
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(elastic.LimitIndices(rows, in.Limit))
}

func (b *mcpBackends) elasticHealth(ctx context.Context, _ *mcp.CallToolRequest, in ElasticHealthInput) (*mcp.CallToolResult, any, error) {
	c, err := b.elasticClient(in.Section)
	if err != nil {
		return nil, nil, err
	}
	health, err := c.Health(ctx)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(health)
}

func (b *mcpBackends) pveNodes(ctx context.Context, _ *mcp.CallToolRequest, in PVENodesInput) (*mcp.CallToolResult, any, error) {
	c, err := b.pveClient(in.Section)
	if err != nil {
		return nil, nil, err
	}
	nodes, err := c.Nodes(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		rows[i] = n.Row()
	}
	return jsonResult(rows)
}

func (b *mcpBackends) pveVMs(ctx context.Context, _ *mcp.CallToolRequest, in PVEVMsInput) (*mcp.CallToolResult, any, error) {
	c, err := b.pveClient(in.Section)
	if err != nil {
		return nil, nil, err
	}
	vms, err := c.VMs(ctx, in.Node, in.Templates)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(guestRows(pve.KindVM, vms))
}

func (b *mcpBackends) ldapUser(ctx context.Context, _ *mcp.CallToolRequest, in LDAPUserInput) (*mcp.CallToolResult, any, error) {
	if in.Name == "" {
		return nil, nil, errors.New("name is required")
	}
	section, c, err := b.ldapClient(ctx, in.Section)
	if err != nil {
		return nil, nil, err
	}
	records, err := c.FindUsers(in.Name, in.Attributes)
	if err != nil {
		b.dropLDAP(section, err)
		return nil, nil, err
	}
	return jsonResult(records)
}
