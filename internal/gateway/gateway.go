// Package gateway routes inbound activities: conversation lifecycle
// events, control commands, and everything else to the run driver.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/relaybot/relaybot/internal/agents"
	"github.com/relaybot/relaybot/internal/channels"
	"github.com/relaybot/relaybot/internal/commands"
	"github.com/relaybot/relaybot/internal/observability"
	"github.com/relaybot/relaybot/internal/toolcfg"
	"github.com/relaybot/relaybot/pkg/models"
)

const welcomeText = "Hello and welcome! Send a message to talk to the agent, " +
	"/help for commands, or #mcp help to manage your tool servers."

const noConfigText = "You have no tool servers configured; the agent will run without tools. " +
	"Use #mcp edit to add some."

// messageRe is a diagnostic: inbound text matching it is echoed with
// the activity type instead of being relayed.
var messageRe = regexp.MustCompile(`(?i)^message`)

// Gateway dispatches activities to commands and the run driver.
type Gateway struct {
	states   *StateStore
	parser   *commands.Parser
	registry *commands.Registry
	store    toolcfg.Store
	manager  *agents.Manager
	driver   *agents.Driver
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a gateway.
func New(states *StateStore, registry *commands.Registry, store toolcfg.Store, manager *agents.Manager, driver *agents.Driver, logger *slog.Logger, metrics *observability.Metrics) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		states:   states,
		parser:   commands.NewParser(),
		registry: registry,
		store:    store,
		manager:  manager,
		driver:   driver,
		logger:   logger.With("component", "gateway"),
		metrics:  metrics,
	}
}

// HandleActivity processes one inbound activity. Errors are converted
// to plain-text replies where a user is listening; the returned error
// is for transport-level logging only.
func (g *Gateway) HandleActivity(ctx context.Context, activity *models.Activity, responder channels.Responder) error {
	if g.metrics != nil {
		g.metrics.RecordMessage("inbound")
	}

	switch activity.Type {
	case models.ActivityConversationUpdate:
		return g.handleConversationUpdate(ctx, activity, responder)

	case models.ActivityEndOfConversation:
		g.teardown(ctx, activity)
		return nil

	case models.ActivityMessage:
		return g.handleMessage(ctx, activity, responder)

	default:
		g.logger.Debug("ignoring activity", "type", activity.Type)
		return nil
	}
}

func (g *Gateway) handleConversationUpdate(ctx context.Context, activity *models.Activity, responder channels.Responder) error {
	botID := activity.Recipient.ID

	for _, member := range activity.MembersAdded {
		if member.ID != botID {
			if err := responder.SendText(ctx, welcomeText); err != nil {
				return fmt.Errorf("send welcome: %w", err)
			}
			break
		}
	}

	for _, member := range activity.MembersRemoved {
		if member.ID != botID {
			g.teardown(ctx, activity)
			break
		}
	}
	return nil
}

// teardown deletes the conversation's agent and forgets its state.
func (g *Gateway) teardown(ctx context.Context, activity *models.Activity) {
	conversationID := conversationID(activity)
	g.states.With(conversationID, func(state *models.ConversationState) {
		g.manager.DeleteAgent(ctx, state)
	})
	g.states.Drop(conversationID)
	g.logger.Info("conversation ended", "conversation_id", conversationID)
}

func (g *Gateway) handleMessage(ctx context.Context, activity *models.Activity, responder channels.Responder) error {
	conversationID := conversationID(activity)
	text := strings.TrimSpace(activity.Text)

	var handleErr error
	g.states.With(conversationID, func(state *models.ConversationState) {
		state.Count++

		if parsed := g.parser.ParseCommand(text); parsed != nil {
			handleErr = g.runCommand(ctx, parsed, activity, state, responder)
			return
		}

		if messageRe.MatchString(text) {
			handleErr = responder.SendText(ctx, "Matched activity type: "+string(activity.Type))
			return
		}

		handleErr = g.relay(ctx, activity, state, text, responder)
	})

	if handleErr != nil {
		g.logger.Error("activity handling failed", "conversation_id", conversationID, "error", handleErr)
		if g.metrics != nil {
			g.metrics.RecordError("gateway", "handle_activity")
		}
		// Best effort; the original failure is the one to surface.
		_ = responder.SendText(ctx, "Something went wrong handling your message: "+handleErr.Error())
	}
	return handleErr
}

func (g *Gateway) runCommand(ctx context.Context, parsed *commands.ParsedCommand, activity *models.Activity, state *models.ConversationState, responder channels.Responder) error {
	inv := &commands.Invocation{
		Name:           parsed.Name,
		Args:           parsed.Args,
		Prefix:         parsed.Prefix,
		RawText:        activity.Text,
		ConversationID: conversationID(activity),
		UserID:         activity.UserID(),
		UserToken:      userToken(activity),
		Activity:       activity,
		State:          state,
	}

	result, err := g.registry.Execute(ctx, inv)
	if err != nil {
		// Unknown commands read as plain text to the agent.
		g.logger.Debug("command not dispatched, relaying", "name", parsed.Prefix+parsed.Name, "error", err)
		return g.relay(ctx, activity, state, strings.TrimSpace(activity.Text), responder)
	}
	if result.Suppress || result.Text == "" {
		return nil
	}
	if g.metrics != nil {
		g.metrics.RecordMessage("outbound")
	}
	return responder.SendText(ctx, result.Text)
}

// relay drives one agent turn: tool registry, agent, thread, run.
func (g *Gateway) relay(ctx context.Context, activity *models.Activity, state *models.ConversationState, text string, responder channels.Responder) error {
	if text == "" {
		return nil
	}

	if !state.HasAgent() {
		servers, err := toolcfg.BuildRegistry(ctx, g.store, activity.UserID())
		if errors.Is(err, toolcfg.ErrNoConfiguration) {
			if sendErr := responder.SendText(ctx, noConfigText); sendErr != nil {
				return sendErr
			}
			servers = nil
		} else if err != nil {
			return fmt.Errorf("build tool registry: %w", err)
		}

		if _, err := g.manager.EnsureAgent(ctx, state, servers); err != nil {
			return err
		}
	}

	if g.metrics != nil {
		g.metrics.RecordMessage("outbound")
	}
	return g.driver.Respond(ctx, state, text, responder.OpenStream(ctx))
}

func conversationID(activity *models.Activity) string {
	return activity.Conversation.ID
}

// userToken pulls the delegated sign-in token when the channel supplied
// one with the activity.
func userToken(activity *models.Activity) string {
	if len(activity.ChannelData) == 0 {
		return ""
	}
	var data struct {
		UserToken string `json:"userToken"`
	}
	if err := json.Unmarshal(activity.ChannelData, &data); err != nil {
		return ""
	}
	return data.UserToken
}
