// Package config defines the startup configuration for the relay bot.
//
// All environment-sourced settings are resolved exactly once, when the
// configuration file is loaded, and the resulting Config is passed by
// reference to every component that needs it.
package config

import (
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for the relay bot process.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Store     StoreConfig     `yaml:"store"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Identity  IdentityConfig  `yaml:"identity"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the inbound webhook and metrics listeners.
type ServerConfig struct {
	// ListenAddr is the address the activity webhook binds to.
	ListenAddr string `yaml:"listen_addr"`

	// WebhookPath is the path activities are delivered to.
	WebhookPath string `yaml:"webhook_path"`

	// MetricsAddr is the address the Prometheus endpoint binds to.
	// Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// AppID is the bot's application (client) id on the chat service.
	AppID string `yaml:"app_id"`

	// AppPassword is the bot's client secret, used for outbound replies.
	AppPassword string `yaml:"app_password"`

	// DisableAuth skips verification of inbound Authorization headers.
	// Intended for local development with an emulator only.
	DisableAuth bool `yaml:"disable_auth"`
}

// RuntimeConfig configures the agent runtime backend.
type RuntimeConfig struct {
	// Backend selects the runtime implementation: "foundry" (default)
	// or "assistants".
	Backend string `yaml:"backend"`

	// Endpoint is the Foundry project endpoint.
	Endpoint string `yaml:"endpoint"`

	// Model is the model deployment name agents are created with.
	Model string `yaml:"model"`

	// PollInterval is the cadence of run status re-checks in polling
	// mode.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RunTimeout bounds one message turn end to end. The upstream
	// service defines no bound of its own, so a stalled run would
	// otherwise hold the handler open indefinitely.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// StreamPacing is the minimum gap between forwarded delta chunks.
	StreamPacing time.Duration `yaml:"stream_pacing"`
}

// OpenAIConfig configures the assistants fallback backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// StoreConfig configures the per-user tool-server document store.
type StoreConfig struct {
	// Driver selects the store implementation: "cosmos", "sqlite", or
	// "memory".
	Driver string `yaml:"driver"`

	// Cosmos settings.
	CosmosEndpoint  string `yaml:"cosmos_endpoint"`
	CosmosDatabase  string `yaml:"cosmos_database"`
	CosmosContainer string `yaml:"cosmos_container"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `yaml:"sqlite_path"`
}

// ApprovalsConfig configures tool-approval header injection.
type ApprovalsConfig struct {
	// DefaultHeader and DefaultSecret form the placeholder secret header
	// attached to approvals for ordinary tool servers.
	DefaultHeader string `yaml:"default_header"`
	DefaultSecret string `yaml:"default_secret"`

	// PrivilegedLabel names the one tool server whose approvals carry
	// PrivilegedSecret instead of the placeholder.
	PrivilegedLabel  string `yaml:"privileged_label"`
	PrivilegedSecret string `yaml:"privileged_secret"`
}

// IdentityConfig configures delegated token exchange for profile lookups.
type IdentityConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

var validBackends = map[string]bool{"foundry": true, "assistants": true}
var validDrivers = map[string]bool{"cosmos": true, "sqlite": true, "memory": true}

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Default returns a Config with sensible defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  ":3978",
			WebhookPath: "/api/messages",
		},
		Runtime: RuntimeConfig{
			Backend:      "foundry",
			PollInterval: time.Second,
			RunTimeout:   5 * time.Minute,
			StreamPacing: 100 * time.Millisecond,
		},
		Store: StoreConfig{
			Driver:          "memory",
			CosmosDatabase:  "relaybot",
			CosmosContainer: "toolservers",
		},
		Approvals: ApprovalsConfig{
			DefaultHeader: "SuperSecret",
			DefaultSecret: "123456",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if !validBackends[c.Runtime.Backend] {
		return fmt.Errorf("runtime.backend %q is not supported", c.Runtime.Backend)
	}
	if c.Runtime.Backend == "foundry" && c.Runtime.Endpoint == "" {
		return fmt.Errorf("runtime.endpoint is required for the foundry backend")
	}
	if c.Runtime.Backend == "assistants" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required for the assistants backend")
	}
	if c.Runtime.Model == "" {
		return fmt.Errorf("runtime.model is required")
	}
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if c.Store.Driver == "cosmos" && c.Store.CosmosEndpoint == "" {
		return fmt.Errorf("store.cosmos_endpoint is required for the cosmos driver")
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
	}
	if c.Runtime.PollInterval <= 0 {
		return fmt.Errorf("runtime.poll_interval must be positive")
	}
	if c.Approvals.PrivilegedLabel != "" && !labelPattern.MatchString(c.Approvals.PrivilegedLabel) {
		return fmt.Errorf("approvals.privileged_label %q is not a valid server label", c.Approvals.PrivilegedLabel)
	}
	return nil
}

// parse decodes yaml bytes over a default-initialized Config.
func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
