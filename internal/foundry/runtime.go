package foundry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/relaybot/relaybot/internal/agents"
	"github.com/relaybot/relaybot/pkg/models"
)

// Backend adapts the Foundry client to the agents.Runtime contract.
type Backend struct {
	client *Client
}

// NewBackend wraps a client as a runtime backend.
func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Name() string { return "foundry" }

// SupportsStreaming is true: runs are consumed through the SSE event
// stream, with polling kept only as a contract fallback.
func (b *Backend) SupportsStreaming() bool { return true }

func (b *Backend) CreateAgent(ctx context.Context, spec agents.AgentSpec) (string, error) {
	req := createAgentRequest{
		Model:        spec.Model,
		Name:         spec.Name,
		Instructions: spec.Instructions,
		Tools:        toolDefinitions(spec.Servers),
	}
	var agent agentResource
	if err := b.client.doJSON(ctx, http.MethodPost, "/assistants", req, &agent); err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}
	b.client.logger.Info("created agent", "agent_id", agent.ID, "name", spec.Name)
	return agent.ID, nil
}

func (b *Backend) DeleteAgent(ctx context.Context, agentID string) error {
	path := "/assistants/" + url.PathEscape(agentID)
	if err := b.client.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

func (b *Backend) EnsureThread(ctx context.Context, threadID string) (string, error) {
	if threadID != "" {
		var thread threadResource
		path := "/threads/" + url.PathEscape(threadID)
		err := b.client.doJSON(ctx, http.MethodGet, path, nil, &thread)
		if err == nil {
			return thread.ID, nil
		}
		// A vanished thread is recreated rather than surfaced.
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			return "", fmt.Errorf("fetch thread: %w", err)
		}
		b.client.logger.Warn("thread not found, creating a new one", "thread_id", threadID)
	}

	var thread threadResource
	if err := b.client.doJSON(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

func (b *Backend) AddUserMessage(ctx context.Context, threadID, text string) error {
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	req := createMessageRequest{Role: "user", Content: text}
	if err := b.client.doJSON(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

func (b *Backend) CreateRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (*agents.Run, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	req := createRunRequest{AssistantID: agentID, ToolResources: runResources(servers)}
	var run runResource
	if err := b.client.doJSON(ctx, http.MethodPost, path, req, &run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return convertRun(&run), nil
}

func (b *Backend) GetRun(ctx context.Context, threadID, runID string) (*agents.Run, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	var run runResource
	if err := b.client.doJSON(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, fmt.Errorf("fetch run: %w", err)
	}
	return convertRun(&run), nil
}

func (b *Backend) CancelRun(ctx context.Context, threadID, runID string) error {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/cancel"
	if err := b.client.doJSON(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return nil
}

func (b *Backend) SubmitApprovals(ctx context.Context, threadID, runID string, approvals []agents.Approval) error {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/submit_tool_outputs"
	req := submitApprovalsRequest(approvals, false)
	if err := b.client.doJSON(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("submit approvals: %w", err)
	}
	return nil
}

func (b *Backend) ListTranscript(ctx context.Context, threadID string) ([]agents.TranscriptMessage, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/messages?order=asc"
	var list listResponse[messageResource]
	if err := b.client.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]agents.TranscriptMessage, 0, len(list.Data))
	for i := range list.Data {
		msg := &list.Data[i]
		out = append(out, agents.TranscriptMessage{Role: msg.Role, Text: msg.text()})
	}
	return out, nil
}

func (b *Backend) ListRunSteps(ctx context.Context, threadID, runID string) ([]agents.RunStep, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/steps"
	var list listResponse[runStepResource]
	if err := b.client.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("list run steps: %w", err)
	}
	out := make([]agents.RunStep, 0, len(list.Data))
	for _, step := range list.Data {
		converted := agents.RunStep{ID: step.ID, Type: step.Type, Status: step.Status}
		if step.StepDetails != nil {
			for _, call := range step.StepDetails.ToolCalls {
				converted.ToolCallIDs = append(converted.ToolCallIDs, call.ID)
			}
		}
		out = append(out, converted)
	}
	return out, nil
}

func (b *Backend) StreamRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (agents.EventStream, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	req := createRunRequest{AssistantID: agentID, ToolResources: runResources(servers), Stream: true}
	resp, err := b.client.do(ctx, http.MethodPost, path, req, true)
	if err != nil {
		return nil, fmt.Errorf("start run stream: %w", err)
	}
	return newEventStream(resp.Body, b.client.logger), nil
}

func (b *Backend) SubmitApprovalsStream(ctx context.Context, threadID, runID string, approvals []agents.Approval) (agents.EventStream, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/submit_tool_outputs"
	req := submitApprovalsRequest(approvals, true)
	resp, err := b.client.do(ctx, http.MethodPost, path, req, true)
	if err != nil {
		return nil, fmt.Errorf("submit approvals: %w", err)
	}
	return newEventStream(resp.Body, b.client.logger), nil
}

func toolDefinitions(servers []models.ToolServer) []toolDefinition {
	defs := make([]toolDefinition, 0, len(servers))
	for _, s := range servers {
		defs = append(defs, toolDefinition{
			Type:         "mcp",
			ServerLabel:  s.Label,
			ServerURL:    s.URL,
			AllowedTools: s.AllowedTools,
		})
	}
	return defs
}

func runResources(servers []models.ToolServer) *toolResources {
	if len(servers) == 0 {
		return nil
	}
	res := &toolResources{}
	for _, s := range servers {
		res.MCP = append(res.MCP, mcpRunResource{ServerLabel: s.Label, RequireApproval: "always"})
	}
	return res
}

func submitApprovalsRequest(approvals []agents.Approval, stream bool) submitToolOutputsRequest {
	wire := make([]toolApprovalWire, 0, len(approvals))
	for _, a := range approvals {
		wire = append(wire, toolApprovalWire{ToolCallID: a.ToolCallID, Approve: a.Approve, Headers: a.Headers})
	}
	return submitToolOutputsRequest{ToolOutputs: []toolOutput{}, ToolApprovals: wire, Stream: stream}
}

func convertRun(run *runResource) *agents.Run {
	out := &agents.Run{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   agents.RunStatus(run.Status),
	}
	if run.LastError != nil {
		out.LastError = &agents.RunError{Code: run.LastError.Code, Message: run.LastError.Message}
	}
	if ra := run.RequiredAction; ra != nil && ra.Type == "submit_tool_approval" && ra.SubmitToolApproval != nil {
		for _, call := range ra.SubmitToolApproval.ToolCalls {
			out.PendingCalls = append(out.PendingCalls, agents.ToolCall{
				ID:          call.ID,
				Kind:        call.Type,
				Name:        call.Name,
				ServerLabel: call.ServerLabel,
				Arguments:   call.Arguments,
			})
		}
	}
	return out
}
