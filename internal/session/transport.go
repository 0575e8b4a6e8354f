package session

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lucasnoah/sonarfix/internal/config"
)

// TransportFunc builds the transport for a provider.
type TransportFunc func(ctx context.Context, name string, cfg config.ProviderConfig) (mcp.Transport, error)

// DefaultTransport launches stdio providers as subprocesses and reaches
// streamableHttp providers over HTTP.
func DefaultTransport(_ context.Context, name string, cfg config.ProviderConfig) (mcp.Transport, error) {
	switch cfg.Type {
	case "stdio":
		if cfg.Command == "" {
			return nil, fmt.Errorf("provider %s: command is required", name)
		}
		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Env = mergeEnv(cfg.Env)
		cmd.Dir = cfg.Cwd
		return &mcp.CommandTransport{Command: cmd}, nil
	case "streamableHttp":
		if cfg.URL == "" {
			return nil, fmt.Errorf("provider %s: url is required", name)
		}
		client := http.DefaultClient
		if len(cfg.Headers) > 0 {
			client = &http.Client{Transport: &headerTransport{base: http.DefaultTransport, headers: cfg.Headers}}
		}
		return &mcp.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: client}, nil
	default:
		return nil, fmt.Errorf("provider %s: unsupported transport type %q", name, cfg.Type)
	}
}
