// Package pve manages Proxmox VE nodes, guests, storage and networking
// through the REST API.
package pve

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/luthermonson/go-proxmox"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/logger"
)

// API is the path level surface of the Proxmox REST API. Responses are
// already unwrapped from their "data" envelope. *proxmox.Client satisfies
// it.
type API interface {
	Get(ctx context.Context, path string, v any) error
	Post(ctx context.Context, path string, data any, v any) error
	Put(ctx context.Context, path string, data any, v any) error
	Delete(ctx context.Context, path string, v any) error
}

// Connect builds an API for a PVE section, preferring the API token over
// the password.
func Connect(cfg *config.PVEConfig) API {
	httpClient := &http.Client{
		Timeout: cfg.TimeoutDuration(),
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}, //nolint:gosec // verify_ssl per section
		},
	}
	opts := []proxmox.Option{proxmox.WithHTTPClient(httpClient)}
	if cfg.UsesToken() {
		logger.Logger.Debug("connecting to Proxmox VE with API token", "section", cfg.Section, "token", cfg.TokenID())
		opts = append(opts, proxmox.WithAPIToken(cfg.TokenID(), cfg.TokenValue))
	} else {
		logger.Logger.Debug("connecting to Proxmox VE with password", "section", cfg.Section, "user", cfg.User)
		opts = append(opts, proxmox.WithCredentials(&proxmox.Credentials{
			Username: cfg.User,
			Password: cfg.Password,
		}))
	}
	return proxmox.NewClient(cfg.BaseURL(), opts...)
}

// DryRun passes reads through and prints writes instead of sending them.
type DryRun struct {
	API
	Out io.Writer
}

func (d DryRun) Post(_ context.Context, path string, data any, v any) error {
	return d.print("POST", path, data, v)
}

func (d DryRun) Put(_ context.Context, path string, data any, v any) error {
	return d.print("PUT", path, data, v)
}

func (d DryRun) Delete(_ context.Context, path string, v any) error {
	return d.print("DELETE", path, nil, v)
}

func (d DryRun) print(method, path string, data, v any) error {
	line := fmt.Sprintf("DRY-RUN: %s %s", method, path)
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		line += " " + string(b)
	}
	fmt.Fprintln(d.Out, line)
	if s, ok := v.(*string); ok {
		*s = "dry-run"
	}
	return nil
}
