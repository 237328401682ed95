package foundry

import "encoding/json"

// Wire types for the Foundry agent data plane. Field names follow the
// service's snake_case JSON.

type agentResource struct {
	ID           string           `json:"id"`
	Object       string           `json:"object,omitempty"`
	Name         string           `json:"name,omitempty"`
	Model        string           `json:"model,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Tools        []toolDefinition `json:"tools,omitempty"`
}

type createAgentRequest struct {
	Model        string           `json:"model"`
	Name         string           `json:"name"`
	Instructions string           `json:"instructions"`
	Tools        []toolDefinition `json:"tools,omitempty"`
}

// toolDefinition declares an MCP server the agent may call.
type toolDefinition struct {
	Type         string   `json:"type"`
	ServerLabel  string   `json:"server_label,omitempty"`
	ServerURL    string   `json:"server_url,omitempty"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
}

type threadResource struct {
	ID string `json:"id"`
}

type createMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResource struct {
	ID      string           `json:"id"`
	Role    string           `json:"role"`
	Content []messageContent `json:"content"`
}

type messageContent struct {
	Type string       `json:"type"`
	Text *messageText `json:"text,omitempty"`
}

type messageText struct {
	Value string `json:"value"`
}

// text concatenates the message's text parts.
func (m *messageResource) text() string {
	var out string
	for _, part := range m.Content {
		if part.Type == "text" && part.Text != nil {
			out += part.Text.Value
		}
	}
	return out
}

type listResponse[T any] struct {
	Object  string `json:"object"`
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id,omitempty"`
}

type createRunRequest struct {
	AssistantID   string         `json:"assistant_id"`
	ToolResources *toolResources `json:"tool_resources,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
}

type toolResources struct {
	MCP []mcpRunResource `json:"mcp,omitempty"`
}

// mcpRunResource binds per-run MCP settings; approval is always required
// so every tool call pauses the run for relay.
type mcpRunResource struct {
	ServerLabel     string `json:"server_label"`
	RequireApproval string `json:"require_approval"`
}

type runResource struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	AssistantID    string          `json:"assistant_id,omitempty"`
	Status         string          `json:"status"`
	RequiredAction *requiredAction `json:"required_action,omitempty"`
	LastError      *runLastError   `json:"last_error,omitempty"`
}

type requiredAction struct {
	Type               string              `json:"type"`
	SubmitToolApproval *submitToolApproval `json:"submit_tool_approval,omitempty"`
}

type submitToolApproval struct {
	ToolCalls []toolCallResource `json:"tool_calls"`
}

type toolCallResource struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	ServerLabel string `json:"server_label,omitempty"`
	Arguments   string `json:"arguments,omitempty"`
}

type runLastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type submitToolOutputsRequest struct {
	ToolOutputs   []toolOutput       `json:"tool_outputs"`
	ToolApprovals []toolApprovalWire `json:"tool_approvals,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
}

type toolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

type toolApprovalWire struct {
	ToolCallID string            `json:"tool_call_id"`
	Approve    bool              `json:"approve"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type runStepResource struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	StepDetails *runStepDetails `json:"step_details,omitempty"`
}

type runStepDetails struct {
	Type      string             `json:"type"`
	ToolCalls []toolCallResource `json:"tool_calls,omitempty"`
}

// messageDeltaEvent is the payload of a thread.message.delta stream
// event.
type messageDeltaEvent struct {
	ID    string `json:"id"`
	Delta struct {
		Content []struct {
			Index int          `json:"index"`
			Type  string       `json:"type"`
			Text  *messageText `json:"text,omitempty"`
		} `json:"content"`
	} `json:"delta"`
}

// text concatenates the delta's text fragments.
func (d *messageDeltaEvent) text() string {
	var out string
	for _, part := range d.Delta.Content {
		if part.Type == "text" && part.Text != nil {
			out += part.Text.Value
		}
	}
	return out
}

type errorEvent struct {
	Error json.RawMessage `json:"error,omitempty"`
}
