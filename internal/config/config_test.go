package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Runtime.Backend != "foundry" {
		t.Errorf("default backend = %q, want foundry", cfg.Runtime.Backend)
	}
	if cfg.Runtime.PollInterval != time.Second {
		t.Errorf("default poll interval = %v, want 1s", cfg.Runtime.PollInterval)
	}
	if cfg.Approvals.DefaultHeader != "SuperSecret" {
		t.Errorf("default approval header = %q", cfg.Approvals.DefaultHeader)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_RELAY_ENDPOINT", "https://proj.example.net")

	path := filepath.Join(t.TempDir(), "relaybot.yaml")
	content := `
runtime:
  endpoint: ${TEST_RELAY_ENDPOINT}
  model: gpt-4o
store:
  driver: memory
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.Endpoint != "https://proj.example.net" {
		t.Errorf("endpoint = %q, env not expanded", cfg.Runtime.Endpoint)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid foundry config",
			mutate: func(c *Config) { c.Runtime.Endpoint = "https://x"; c.Runtime.Model = "m" },
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Runtime.Backend = "bedrock" },
			wantErr: "not supported",
		},
		{
			name:    "foundry needs endpoint",
			mutate:  func(c *Config) { c.Runtime.Model = "m" },
			wantErr: "runtime.endpoint",
		},
		{
			name: "assistants needs api key",
			mutate: func(c *Config) {
				c.Runtime.Backend = "assistants"
				c.Runtime.Model = "m"
			},
			wantErr: "openai.api_key",
		},
		{
			name: "cosmos needs endpoint",
			mutate: func(c *Config) {
				c.Runtime.Endpoint = "https://x"
				c.Runtime.Model = "m"
				c.Store.Driver = "cosmos"
			},
			wantErr: "cosmos_endpoint",
		},
		{
			name: "bad privileged label",
			mutate: func(c *Config) {
				c.Runtime.Endpoint = "https://x"
				c.Runtime.Model = "m"
				c.Approvals.PrivilegedLabel = "bad-label!"
			},
			wantErr: "privileged_label",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
