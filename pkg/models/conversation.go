package models

// ToolServer describes one external MCP tool server an agent may call.
// The JSON tags match the persisted document format.
type ToolServer struct {
	// Label identifies the server; it must match [A-Za-z0-9_]+.
	Label string `json:"serverLabel"`

	// URL is the server endpoint.
	URL string `json:"serverUrl"`

	// AllowedTools restricts which operations the agent may invoke.
	AllowedTools []string `json:"allowedTools"`
}

// ConversationState is the per-conversation session record. It is created
// on the first message in a conversation and mutated by every handler.
type ConversationState struct {
	// Count is the number of messages seen in this conversation.
	Count int `json:"count"`

	// ThreadID is the remote conversation transcript container, if one
	// has been created.
	ThreadID string `json:"threadId,omitempty"`

	// AgentID is the remote agent backing this conversation, if one has
	// been created.
	AgentID string `json:"agentId,omitempty"`

	// ToolServers is the tool registry the agent was created with.
	ToolServers []ToolServer `json:"toolServers,omitempty"`
}

// ClearAgent removes the agent id, thread id, and tool registry together.
// The three fields are meaningless without each other, so they are always
// cleared as a unit.
func (s *ConversationState) ClearAgent() {
	s.AgentID = ""
	s.ThreadID = ""
	s.ToolServers = nil
}

// HasAgent reports whether a remote agent is attached to the conversation.
func (s *ConversationState) HasAgent() bool {
	return s.AgentID != ""
}
