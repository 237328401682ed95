package agents

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/relaybot/relaybot/pkg/models"
)

// fakeRuntime scripts run status sequences and records calls.
type fakeRuntime struct {
	mu sync.Mutex

	streaming bool

	createdAgents []AgentSpec
	deletedAgents []string
	deleteErr     error
	createErr     error

	threadID string
	messages []string

	// statuses is consumed one element per GetRun call.
	statuses     []RunStatus
	pendingCalls []ToolCall
	lastError    *RunError

	submitted [][]Approval
	cancelled []string

	transcript []TranscriptMessage

	// streams is consumed one per StreamRun/SubmitApprovalsStream call.
	streams []*fakeStream
}

func (f *fakeRuntime) Name() string            { return "fake" }
func (f *fakeRuntime) SupportsStreaming() bool { return f.streaming }

func (f *fakeRuntime) CreateAgent(ctx context.Context, spec AgentSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createdAgents = append(f.createdAgents, spec)
	return fmt.Sprintf("agent_%d", len(f.createdAgents)), nil
}

func (f *fakeRuntime) DeleteAgent(ctx context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedAgents = append(f.deletedAgents, agentID)
	return f.deleteErr
}

func (f *fakeRuntime) EnsureThread(ctx context.Context, threadID string) (string, error) {
	if threadID != "" {
		return threadID, nil
	}
	if f.threadID == "" {
		f.threadID = "thread_1"
	}
	return f.threadID, nil
}

func (f *fakeRuntime) AddUserMessage(ctx context.Context, threadID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeRuntime) CreateRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (*Run, error) {
	return &Run{ID: "run_1", ThreadID: threadID, Status: StatusQueued}, nil
}

func (f *fakeRuntime) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return &Run{ID: runID, ThreadID: threadID, Status: StatusCompleted}, nil
	}
	status := f.statuses[0]
	f.statuses = f.statuses[1:]
	run := &Run{ID: runID, ThreadID: threadID, Status: status, LastError: f.lastError}
	if status == StatusRequiresAction {
		run.PendingCalls = f.pendingCalls
	}
	return run, nil
}

func (f *fakeRuntime) CancelRun(ctx context.Context, threadID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	// A cancelled run stops being active.
	f.statuses = []RunStatus{StatusCancelled}
	return nil
}

func (f *fakeRuntime) SubmitApprovals(ctx context.Context, threadID, runID string, approvals []Approval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, approvals)
	return nil
}

func (f *fakeRuntime) ListTranscript(ctx context.Context, threadID string) ([]TranscriptMessage, error) {
	return f.transcript, nil
}

func (f *fakeRuntime) ListRunSteps(ctx context.Context, threadID, runID string) ([]RunStep, error) {
	return nil, nil
}

func (f *fakeRuntime) StreamRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (EventStream, error) {
	return f.nextStream()
}

func (f *fakeRuntime) SubmitApprovalsStream(ctx context.Context, threadID, runID string, approvals []Approval) (EventStream, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, approvals)
	f.mu.Unlock()
	return f.nextStream()
}

func (f *fakeRuntime) nextStream() (EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil, fmt.Errorf("no scripted stream remaining")
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

// fakeStream replays scripted events.
type fakeStream struct {
	events []Event
	closed bool
}

func (s *fakeStream) Recv() (Event, error) {
	if len(s.events) == 0 {
		return Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeReply records the reply stream interactions in order.
type fakeReply struct {
	informative []string
	chunks      []string
	closed      bool
}

func (r *fakeReply) QueueInformative(text string) { r.informative = append(r.informative, text) }
func (r *fakeReply) QueueChunk(text string)       { r.chunks = append(r.chunks, text) }
func (r *fakeReply) Close(ctx context.Context) error {
	r.closed = true
	return nil
}

func (r *fakeReply) text() string { return strings.Join(r.chunks, "") }
