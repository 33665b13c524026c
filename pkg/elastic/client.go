// Package elastic talks to Elasticsearch or OpenSearch clusters. Requests
// are built with esapi and sent through whichever vendor client matches the
// configured engine; both satisfy esapi.Transport.
package elastic

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/opensearch-project/opensearch-go/v2"
)

const (
	EngineElasticsearch = "elasticsearch"
	EngineOpenSearch    = "opensearch"
)

type Client struct {
	transport esapi.Transport
	engine    string
	section   string
}

// New builds a client for an ELASTIC section.
func New(cfg *config.ElasticConfig) (*Client, error) {
	httpTransport, err := newHTTPTransport(cfg)
	if err != nil {
		return nil, err
	}

	engine := strings.ToLower(cfg.Engine)
	logger.Logger.Debug("creating search client",
		"section", cfg.Section, "engine", engine, "addresses", cfg.Addresses())

	var transport esapi.Transport
	switch engine {
	case EngineOpenSearch:
		transport, err = opensearch.NewClient(opensearch.Config{
			Addresses: cfg.Addresses(),
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: httpTransport,
		})
	default:
		engine = EngineElasticsearch
		transport, err = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: cfg.Addresses(),
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: httpTransport,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", engine, err)
	}
	return &Client{transport: transport, engine: engine, section: cfg.Section}, nil
}

// NewWithTransport wraps an existing transport.
func NewWithTransport(t esapi.Transport, engine string) *Client {
	return &Client{transport: t, engine: engine}
}

func (c *Client) Engine() string {
	return c.engine
}

func newHTTPTransport(cfg *config.ElasticConfig) (*http.Transport, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.Insecure()} //nolint:gosec // opt-in per section
	if cfg.CACerts != "" && !cfg.Insecure() {
		pem, err := os.ReadFile(cfg.CACerts)
		if err != nil {
			return nil, fmt.Errorf("read ca_certs: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca_certs %s holds no PEM certificates", cfg.CACerts)
		}
		tlsCfg.RootCAs = pool
	}
	timeout := cfg.TimeoutDuration()
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		TLSClientConfig:       tlsCfg,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
	}, nil
}

// do sends req and decodes a successful JSON body into out.
func (c *Client) do(ctx context.Context, op string, req esapi.Request, out any) error {
	res, err := req.Do(ctx, c.transport)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return newAPIError(op, res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
