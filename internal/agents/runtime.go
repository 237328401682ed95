// Package agents drives the remote agent lifecycle: lazy agent creation,
// thread and run management, tool-approval relay, and reply delivery.
// The execution engine itself is remote; this package adapts its run
// state machine onto the bot's conversation turns.
package agents

import (
	"context"
	"errors"

	"github.com/relaybot/relaybot/pkg/models"
)

// ErrNoAgent indicates an operation that requires an agent was attempted
// on a conversation without one.
var ErrNoAgent = errors.New("no agent attached to conversation")

// RunStatus is the remote run's lifecycle state.
type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCompleted      RunStatus = "completed"
	StatusFailed         RunStatus = "failed"
	StatusCancelled      RunStatus = "cancelled"
	StatusExpired        RunStatus = "expired"
)

// Active reports whether the run is still being driven.
func (s RunStatus) Active() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusRequiresAction:
		return true
	}
	return false
}

// Run is the backend-neutral view of one agent execution.
type Run struct {
	ID       string
	ThreadID string
	Status   RunStatus

	// PendingCalls is populated when Status is requires_action and the
	// run is waiting on tool approvals.
	PendingCalls []ToolCall

	// LastError is populated when Status is failed.
	LastError *RunError
}

// RunError is the run's reported failure.
type RunError struct {
	Code    string
	Message string
}

// ToolCall is one pending tool invocation awaiting approval.
type ToolCall struct {
	ID          string
	Kind        string // "mcp" for remote tool-provider calls
	Name        string
	ServerLabel string
	Arguments   string
}

// Approval grants one pending tool call, optionally carrying
// provider-specific authorization headers.
type Approval struct {
	ToolCallID string
	Approve    bool
	Headers    map[string]string
}

// AgentSpec describes the remote agent to create.
type AgentSpec struct {
	Name         string
	Model        string
	Instructions string
	Servers      []models.ToolServer
}

// TranscriptMessage is one entry of the thread transcript.
type TranscriptMessage struct {
	Role string
	Text string
}

// RunStep is one executed step of a completed run.
type RunStep struct {
	ID     string
	Type   string
	Status string

	// ToolCallIDs lists the tool calls the step performed, when the
	// step is of the tool-calls kind.
	ToolCallIDs []string
}

// EventKind tags a run stream event. The set is closed; events the
// backend emits outside it surface as EventUnknown.
type EventKind string

const (
	EventRunCreated        EventKind = "run.created"
	EventMessageDelta      EventKind = "message.delta"
	EventRunRequiresAction EventKind = "run.requires_action"
	EventRunCompleted      EventKind = "run.completed"
	EventRunFailed         EventKind = "run.failed"
	EventUnknown           EventKind = "unknown"
)

// Event is one element of a run's event stream.
type Event struct {
	Kind EventKind

	// Run carries run state for run-scoped events.
	Run *Run

	// Delta carries appended reply text for EventMessageDelta.
	Delta string

	// Raw is the upstream event tag, kept for logging unknown events.
	Raw string
}

// EventStream yields run events in arrival order. Recv returns io.EOF
// when the stream is exhausted.
type EventStream interface {
	Recv() (Event, error)
	Close() error
}

// Runtime is the agent-orchestration backend consumed by the lifecycle
// manager and run driver.
type Runtime interface {
	// Name identifies the backend for logs and metrics.
	Name() string

	// SupportsStreaming reports whether StreamRun is available.
	SupportsStreaming() bool

	// CreateAgent provisions a remote agent and returns its id.
	CreateAgent(ctx context.Context, spec AgentSpec) (string, error)

	// DeleteAgent removes a remote agent.
	DeleteAgent(ctx context.Context, agentID string) error

	// EnsureThread fetches the thread by id, or creates a new one when
	// id is empty, and returns the thread id in use.
	EnsureThread(ctx context.Context, threadID string) (string, error)

	// AddUserMessage appends a user message to the thread.
	AddUserMessage(ctx context.Context, threadID, text string) error

	// CreateRun starts a run of the agent against the thread, binding
	// the given tool servers as run resources.
	CreateRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (*Run, error)

	// GetRun re-fetches run state.
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)

	// CancelRun cancels an in-flight run.
	CancelRun(ctx context.Context, threadID, runID string) error

	// SubmitApprovals resolves a requires_action pause and resumes the
	// run.
	SubmitApprovals(ctx context.Context, threadID, runID string, approvals []Approval) error

	// ListTranscript returns the thread's messages oldest to newest.
	ListTranscript(ctx context.Context, threadID string) ([]TranscriptMessage, error)

	// ListRunSteps returns the executed steps of a finished run.
	ListRunSteps(ctx context.Context, threadID, runID string) ([]RunStep, error)

	// StreamRun starts a run and returns its live event stream.
	StreamRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (EventStream, error)

	// SubmitApprovalsStream resolves a requires_action pause and returns
	// the event stream of the resumed run.
	SubmitApprovalsStream(ctx context.Context, threadID, runID string, approvals []Approval) (EventStream, error)
}
