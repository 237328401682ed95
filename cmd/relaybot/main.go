// Package main is the CLI entry point for relaybot, a chat bot that
// relays conversations to a hosted agent runtime with per-user MCP tool
// servers.
//
// Start the server:
//
//	relaybot serve --config relaybot.yaml
//
// Without --config, configuration is read from the process environment
// (see internal/config.FromEnv).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/relaybot/relaybot/internal/agents"
	"github.com/relaybot/relaybot/internal/assistants"
	"github.com/relaybot/relaybot/internal/channels/teams"
	"github.com/relaybot/relaybot/internal/commands"
	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/foundry"
	"github.com/relaybot/relaybot/internal/gateway"
	"github.com/relaybot/relaybot/internal/identity"
	"github.com/relaybot/relaybot/internal/observability"
	"github.com/relaybot/relaybot/internal/toolcfg"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "relaybot",
		Short:        "relaybot - chat relay to a hosted agent runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildVersionCmd())
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relaybot %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := buildLogger(cfg.Logging, debug)
	slog.SetDefault(logger)

	metrics := observability.New(nil)

	credential, err := buildCredential(cfg.Identity)
	if err != nil {
		return fmt.Errorf("build credential: %w", err)
	}

	runtime, err := buildRuntime(cfg, credential, logger)
	if err != nil {
		return err
	}

	store, err := buildStore(cfg.Store, credential, logger)
	if err != nil {
		return err
	}

	manager := agents.NewManager(runtime, cfg.Runtime.Model, logger, metrics)
	relay := agents.NewApprovalRelay(cfg.Approvals, logger)
	driver := agents.NewDriver(runtime, relay, cfg.Runtime.PollInterval, cfg.Runtime.RunTimeout, logger, metrics)

	registry := commands.NewRegistry(logger)
	commands.RegisterBuiltins(registry, commands.BuiltinDeps{
		Store:    store,
		Manager:  manager,
		Profiles: identity.NewService(cfg.Identity, logger),
		Version:  version,
	})

	gw := gateway.New(gateway.NewStateStore(), registry, store, manager, driver, logger, metrics)
	adapter := teams.NewAdapter(cfg.Server, cfg.Runtime.StreamPacing, gw.HandleActivity, logger, metrics)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebhookPath, adapter)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listener started", "addr", cfg.Server.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server started",
			"addr", cfg.Server.ListenAddr,
			"path", cfg.Server.WebhookPath,
			"backend", runtime.Name())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return server.Shutdown(shutdownCtx)
}

func buildLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// buildCredential prefers an explicit client secret and falls back to
// the default chain (managed identity, CLI, environment).
func buildCredential(cfg config.IdentityConfig) (azcore.TokenCredential, error) {
	if cfg.TenantID != "" && cfg.ClientID != "" && cfg.ClientSecret != "" {
		return azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

func buildRuntime(cfg *config.Config, credential azcore.TokenCredential, logger *slog.Logger) (agents.Runtime, error) {
	switch cfg.Runtime.Backend {
	case "assistants":
		clientConfig := openai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.BaseURL != "" {
			clientConfig.BaseURL = cfg.OpenAI.BaseURL
		}
		return assistants.New(openai.NewClientWithConfig(clientConfig), logger), nil

	default:
		client, err := foundry.NewClient(cfg.Runtime.Endpoint, credential, &foundry.ClientOptions{Logger: logger})
		if err != nil {
			return nil, err
		}
		return foundry.NewBackend(client), nil
	}
}

func buildStore(cfg config.StoreConfig, credential azcore.TokenCredential, logger *slog.Logger) (toolcfg.Store, error) {
	switch cfg.Driver {
	case "cosmos":
		return toolcfg.NewCosmosStore(cfg.CosmosEndpoint, cfg.CosmosDatabase, cfg.CosmosContainer, credential, logger)
	case "sqlite":
		return toolcfg.NewSQLiteStore(cfg.SQLitePath)
	default:
		logger.Warn("using the in-memory tool-server store; configuration is lost on restart")
		return toolcfg.NewMemoryStore(), nil
	}
}
