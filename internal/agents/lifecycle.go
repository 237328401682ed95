package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/relaybot/relaybot/internal/observability"
	"github.com/relaybot/relaybot/pkg/models"
)

// Instructions is the fixed instruction string agents are created with.
const Instructions = "You are a helpful agent that can use MCP tools to assist users. " +
	"Use the available MCP tools to answer questions and perform tasks."

// agentNamePrefix prefixes generated agent names.
const agentNamePrefix = "relay-agent-"

// Manager owns remote agent creation and teardown for conversations.
type Manager struct {
	runtime Runtime
	model   string
	logger  *slog.Logger
	metrics *observability.Metrics

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a lifecycle manager for the given runtime backend.
func NewManager(runtime Runtime, model string, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runtime: runtime,
		model:   model,
		logger:  logger.With("component", "lifecycle"),
		metrics: metrics,
		now:     time.Now,
	}
}

// AgentName derives a unique, timestamp-based agent name.
func (m *Manager) AgentName() string {
	ts := m.now().UTC().Format(time.RFC3339)
	return agentNamePrefix + strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

// EnsureAgent returns the conversation's agent id, creating a remote
// agent with the given tool servers when none is attached. The created
// agent's tool registry is fixed; changing it requires delete + recreate.
func (m *Manager) EnsureAgent(ctx context.Context, state *models.ConversationState, servers []models.ToolServer) (string, error) {
	if state.HasAgent() {
		return state.AgentID, nil
	}

	spec := AgentSpec{
		Name:         m.AgentName(),
		Model:        m.model,
		Instructions: Instructions,
		Servers:      servers,
	}

	agentID, err := m.runtime.CreateAgent(ctx, spec)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordError("lifecycle", "create_agent")
		}
		return "", fmt.Errorf("create agent: %w", err)
	}

	state.AgentID = agentID
	state.ToolServers = servers
	m.logger.Info("created agent", "agent_id", agentID, "name", spec.Name, "tool_servers", len(servers))
	return agentID, nil
}

// DeleteAgent tears down the conversation's remote agent. A failed remote
// delete is logged and swallowed: deletion is cleanup, not a user-awaited
// operation, and must never block conversation teardown. The stored agent
// id, thread id, and tool registry are cleared together regardless.
func (m *Manager) DeleteAgent(ctx context.Context, state *models.ConversationState) {
	agentID := state.AgentID
	if agentID == "" {
		m.logger.Debug("no agent attached, skipping delete")
		return
	}

	if err := m.runtime.DeleteAgent(ctx, agentID); err != nil {
		m.logger.Error("failed to delete agent", "agent_id", agentID, "error", err)
		if m.metrics != nil {
			m.metrics.RecordError("lifecycle", "delete_agent")
		}
	} else {
		m.logger.Info("deleted agent", "agent_id", agentID)
	}

	state.ClearAgent()
}
