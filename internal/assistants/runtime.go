// Package assistants is a polling-only runtime backend on the OpenAI
// assistants API. It exists for local development and for deployments
// without a Foundry project; the assistants API has no MCP tool
// support, so configured tool servers are ignored with a warning.
package assistants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/relaybot/relaybot/internal/agents"
	"github.com/relaybot/relaybot/pkg/models"
)

// ErrStreamingUnsupported is returned by the streaming entry points.
var ErrStreamingUnsupported = errors.New("assistants: run streaming not supported")

// Backend implements agents.Runtime against the assistants API.
type Backend struct {
	client *openai.Client
	logger *slog.Logger
}

// New creates a backend from an already configured client.
func New(client *openai.Client, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{client: client, logger: logger.With("component", "assistants")}
}

// NewFromAPIKey creates a backend talking to the public OpenAI API.
func NewFromAPIKey(apiKey string, logger *slog.Logger) *Backend {
	return New(openai.NewClient(apiKey), logger)
}

func (b *Backend) Name() string { return "assistants" }

func (b *Backend) SupportsStreaming() bool { return false }

func (b *Backend) CreateAgent(ctx context.Context, spec agents.AgentSpec) (string, error) {
	if len(spec.Servers) > 0 {
		b.logger.Warn("tool servers are not supported by the assistants backend, ignoring", "servers", len(spec.Servers))
	}
	name := spec.Name
	instructions := spec.Instructions
	assistant, err := b.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        spec.Model,
		Name:         &name,
		Instructions: &instructions,
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	b.logger.Info("created assistant", "assistant_id", assistant.ID, "name", spec.Name)
	return assistant.ID, nil
}

func (b *Backend) DeleteAgent(ctx context.Context, agentID string) error {
	if _, err := b.client.DeleteAssistant(ctx, agentID); err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}
	return nil
}

func (b *Backend) EnsureThread(ctx context.Context, threadID string) (string, error) {
	if threadID != "" {
		thread, err := b.client.RetrieveThread(ctx, threadID)
		if err == nil {
			return thread.ID, nil
		}
		if !isNotFound(err) {
			return "", fmt.Errorf("fetch thread: %w", err)
		}
		b.logger.Warn("thread not found, creating a new one", "thread_id", threadID)
	}

	thread, err := b.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

func (b *Backend) AddUserMessage(ctx context.Context, threadID, text string) error {
	_, err := b.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: text,
	})
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

func (b *Backend) CreateRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (*agents.Run, error) {
	run, err := b.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: agentID})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return convertRun(&run), nil
}

func (b *Backend) GetRun(ctx context.Context, threadID, runID string) (*agents.Run, error) {
	run, err := b.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("fetch run: %w", err)
	}
	return convertRun(&run), nil
}

func (b *Backend) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := b.client.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return nil
}

// SubmitApprovals maps approvals onto the tool-output surface, the only
// resume channel the assistants API has. Each approval is reported as
// its JSON encoding. In the current wiring this is contract completeness
// only: agents here are created without tools, so a paused run carries
// no mcp-kind calls, the approval relay builds an empty list, and the
// driver cancels instead of resuming.
func (b *Backend) SubmitApprovals(ctx context.Context, threadID, runID string, approvals []agents.Approval) error {
	outputs := make([]openai.ToolOutput, 0, len(approvals))
	for _, a := range approvals {
		outputs = append(outputs, openai.ToolOutput{
			ToolCallID: a.ToolCallID,
			Output:     fmt.Sprintf(`{"approved":%t}`, a.Approve),
		})
	}
	_, err := b.client.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{ToolOutputs: outputs})
	if err != nil {
		return fmt.Errorf("submit tool outputs: %w", err)
	}
	return nil
}

func (b *Backend) ListTranscript(ctx context.Context, threadID string) ([]agents.TranscriptMessage, error) {
	order := "asc"
	list, err := b.client.ListMessage(ctx, threadID, nil, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]agents.TranscriptMessage, 0, len(list.Messages))
	for _, msg := range list.Messages {
		out = append(out, agents.TranscriptMessage{Role: msg.Role, Text: messageText(msg)})
	}
	return out, nil
}

func (b *Backend) ListRunSteps(ctx context.Context, threadID, runID string) ([]agents.RunStep, error) {
	list, err := b.client.ListRunSteps(ctx, threadID, runID, openai.Pagination{})
	if err != nil {
		return nil, fmt.Errorf("list run steps: %w", err)
	}
	out := make([]agents.RunStep, 0, len(list.RunSteps))
	for _, step := range list.RunSteps {
		out = append(out, agents.RunStep{
			ID:     step.ID,
			Type:   string(step.Type),
			Status: string(step.Status),
		})
	}
	return out, nil
}

func (b *Backend) StreamRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (agents.EventStream, error) {
	return nil, ErrStreamingUnsupported
}

func (b *Backend) SubmitApprovalsStream(ctx context.Context, threadID, runID string, approvals []agents.Approval) (agents.EventStream, error) {
	return nil, ErrStreamingUnsupported
}

func convertRun(run *openai.Run) *agents.Run {
	out := &agents.Run{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   agents.RunStatus(run.Status),
	}
	if run.LastError != nil {
		out.LastError = &agents.RunError{Code: string(run.LastError.Code), Message: run.LastError.Message}
	}
	if ra := run.RequiredAction; ra != nil && ra.SubmitToolOutputs != nil {
		for _, call := range ra.SubmitToolOutputs.ToolCalls {
			out.PendingCalls = append(out.PendingCalls, agents.ToolCall{
				ID:        call.ID,
				Kind:      string(call.Type),
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}
	return out
}

func messageText(msg openai.Message) string {
	var out string
	for _, part := range msg.Content {
		if part.Text != nil {
			out += part.Text.Value
		}
	}
	return out
}

func isNotFound(err error) bool {
	var apiErr *openai.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound
}
