// Package config loads the proxy's environment-driven configuration. No
// env-binding library appears anywhere in the retrieved pack, so this one
// piece stays on os.Getenv plus manual defaulting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	TransportSSE        = "sse"
	TransportHTTPStream = "httpStream"
)

// Config holds every environment-variable-driven setting the proxy reads
// at startup.
type Config struct {
	TargetServerURL       string
	TargetServerTransport string
	TargetServerMCPPath   string
	Port                  int
	Hooks                 []string
	SourceServerMCPPath   string
	AuthToken             string
}

// Load reads Config from the process environment, applying the defaults
// spec'd for TargetServerMCPPath, Port and SourceServerMCPPath.
func Load() (*Config, error) {
	cfg := &Config{
		TargetServerURL:       os.Getenv("TARGET_SERVER_URL"),
		TargetServerTransport: os.Getenv("TARGET_SERVER_TRANSPORT"),
		TargetServerMCPPath:   envOrDefault("TARGET_SERVER_MCP_PATH", "/mcp"),
		SourceServerMCPPath:   envOrDefault("SOURCE_SERVER_MCP_PATH", "/mcp"),
		AuthToken:             os.Getenv("TARGET_SERVER_AUTH_TOKEN"),
		Port:                  34000,
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: PORT must be an integer, got %q", v)
		}
		cfg.Port = port
	}

	if v := os.Getenv("HOOKS"); v != "" {
		for _, h := range strings.Split(v, ",") {
			h = strings.TrimSpace(h)
			if h != "" {
				cfg.Hooks = append(cfg.Hooks, h)
			}
		}
	}

	if cfg.TargetServerURL == "" {
		return nil, fmt.Errorf("config: TARGET_SERVER_URL is required")
	}
	switch cfg.TargetServerTransport {
	case TransportSSE, TransportHTTPStream:
	case "":
		cfg.TargetServerTransport = TransportHTTPStream
	default:
		return nil, fmt.Errorf("config: TARGET_SERVER_TRANSPORT must be %q or %q, got %q", TransportSSE, TransportHTTPStream, cfg.TargetServerTransport)
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
