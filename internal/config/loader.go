package config

import (
	"fmt"
	"os"
)

// Load reads a configuration file, expands ${ENV} references, and
// validates the result. Environment variables are resolved here, once,
// rather than at each point of use.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	cfg, err := parse([]byte(expanded))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv builds a configuration purely from well-known environment
// variables, for deployments that ship no config file.
func FromEnv() (*Config, error) {
	cfg := Default()

	if v := os.Getenv("FOUNDRY_ENDPOINT"); v != "" {
		cfg.Runtime.Endpoint = v
	}
	if v := os.Getenv("FOUNDRY_MODEL"); v != "" {
		cfg.Runtime.Model = v
	}
	if v := os.Getenv("RUNTIME_BACKEND"); v != "" {
		cfg.Runtime.Backend = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("COSMOS_ENDPOINT"); v != "" {
		cfg.Store.Driver = "cosmos"
		cfg.Store.CosmosEndpoint = v
	}
	if v := os.Getenv("COSMOS_DATABASE"); v != "" {
		cfg.Store.CosmosDatabase = v
	}
	if v := os.Getenv("MCP_PRIVILEGED_LABEL"); v != "" {
		cfg.Approvals.PrivilegedLabel = v
	}
	if v := os.Getenv("MCP_PRIVILEGED_SECRET"); v != "" {
		cfg.Approvals.PrivilegedSecret = v
	}
	if v := os.Getenv("BOT_APP_ID"); v != "" {
		cfg.Server.AppID = v
	}
	if v := os.Getenv("BOT_APP_PASSWORD"); v != "" {
		cfg.Server.AppPassword = v
	}
	if v := os.Getenv("TENANT_ID"); v != "" {
		cfg.Identity.TenantID = v
	}
	if v := os.Getenv("CLIENT_ID"); v != "" {
		cfg.Identity.ClientID = v
	}
	if v := os.Getenv("CLIENT_SECRET"); v != "" {
		cfg.Identity.ClientSecret = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment config: %w", err)
	}
	return cfg, nil
}
