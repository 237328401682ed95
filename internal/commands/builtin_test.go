package commands

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/relaybot/relaybot/internal/agents"
	"github.com/relaybot/relaybot/internal/toolcfg"
	"github.com/relaybot/relaybot/pkg/models"
)

// stubRuntime is the minimal runtime needed by the lifecycle manager in
// these tests.
type stubRuntime struct {
	deleted []string
}

func (s *stubRuntime) Name() string            { return "stub" }
func (s *stubRuntime) SupportsStreaming() bool { return false }

func (s *stubRuntime) CreateAgent(ctx context.Context, spec agents.AgentSpec) (string, error) {
	return "agent_1", nil
}

func (s *stubRuntime) DeleteAgent(ctx context.Context, agentID string) error {
	s.deleted = append(s.deleted, agentID)
	return nil
}

func (s *stubRuntime) EnsureThread(ctx context.Context, threadID string) (string, error) {
	return "thread_1", nil
}

func (s *stubRuntime) AddUserMessage(ctx context.Context, threadID, text string) error { return nil }

func (s *stubRuntime) CreateRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (*agents.Run, error) {
	return &agents.Run{ID: "run_1", Status: agents.StatusCompleted}, nil
}

func (s *stubRuntime) GetRun(ctx context.Context, threadID, runID string) (*agents.Run, error) {
	return &agents.Run{ID: runID, Status: agents.StatusCompleted}, nil
}

func (s *stubRuntime) CancelRun(ctx context.Context, threadID, runID string) error { return nil }

func (s *stubRuntime) SubmitApprovals(ctx context.Context, threadID, runID string, approvals []agents.Approval) error {
	return nil
}

func (s *stubRuntime) ListTranscript(ctx context.Context, threadID string) ([]agents.TranscriptMessage, error) {
	return nil, nil
}

func (s *stubRuntime) ListRunSteps(ctx context.Context, threadID, runID string) ([]agents.RunStep, error) {
	return nil, nil
}

func (s *stubRuntime) StreamRun(ctx context.Context, threadID, agentID string, servers []models.ToolServer) (agents.EventStream, error) {
	return nil, errors.New("no streaming")
}

func (s *stubRuntime) SubmitApprovalsStream(ctx context.Context, threadID, runID string, approvals []agents.Approval) (agents.EventStream, error) {
	return nil, errors.New("no streaming")
}

type testEnv struct {
	registry *Registry
	store    *toolcfg.MemoryStore
	runtime  *stubRuntime
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := toolcfg.NewMemoryStore()
	rt := &stubRuntime{}
	manager := agents.NewManager(rt, "gpt-4o", nil, nil)
	registry := NewRegistry(nil)
	RegisterBuiltins(registry, BuiltinDeps{Store: store, Manager: manager, Version: "test"})
	return &testEnv{registry: registry, store: store, runtime: rt}
}

func (e *testEnv) run(t *testing.T, prefix, name, args string, state *models.ConversationState) string {
	t.Helper()
	if state == nil {
		state = &models.ConversationState{}
	}
	res, err := e.registry.Execute(context.Background(), &Invocation{
		Prefix: prefix,
		Name:   name,
		Args:   args,
		UserID: "user-1",
		State:  state,
	})
	if err != nil {
		t.Fatalf("Execute(%s%s) error = %v", prefix, name, err)
	}
	return res.Text
}

func TestCountReportsMessageCount(t *testing.T) {
	env := newTestEnv(t)
	got := env.run(t, "/", "count", "", &models.ConversationState{Count: 7})
	if got != "7 messages" {
		t.Errorf("count = %q", got)
	}
}

func TestStateDumpsJSON(t *testing.T) {
	env := newTestEnv(t)
	state := &models.ConversationState{Count: 2, ThreadID: "thread_9", AgentID: "agent_9"}
	got := env.run(t, "/", "state", "", state)

	var decoded models.ConversationState
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("state output is not JSON: %v\n%s", err, got)
	}
	if decoded.ThreadID != "thread_9" || decoded.Count != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestBase64URLRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	// Identity for inputs needing 0, 1, and 2 base64 padding characters.
	for _, input := range []string{"a", "ab", "abc", "hello world"} {
		encoded := env.run(t, "/", "base64url", input, nil)
		decoded := env.run(t, "/", "base64url", "-d "+encoded, nil)
		if decoded != input {
			t.Errorf("round trip of %q = %q via %q", input, decoded, encoded)
		}
	}
}

func TestBase64URLRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	got := env.run(t, "/", "base64url", "-d not*base64*", nil)
	if !strings.Contains(got, "Not valid URL-safe base64") {
		t.Errorf("got %q", got)
	}
	if usage := env.run(t, "/", "base64url", "", nil); !strings.Contains(usage, "Usage:") {
		t.Errorf("empty args reply = %q, want usage", usage)
	}
}

func TestResetClearsStateAndDeletesAgent(t *testing.T) {
	env := newTestEnv(t)
	state := &models.ConversationState{
		Count:    4,
		ThreadID: "thread_1",
		AgentID:  "agent_1",
		ToolServers: []models.ToolServer{
			{Label: "docs", URL: "https://docs.example/mcp"},
		},
	}

	env.run(t, "/", "reset", "", state)

	if state.Count != 0 || state.HasAgent() || state.ThreadID != "" || state.ToolServers != nil {
		t.Errorf("state after reset = %+v", state)
	}
	if len(env.runtime.deleted) != 1 || env.runtime.deleted[0] != "agent_1" {
		t.Errorf("deleted agents = %v", env.runtime.deleted)
	}
}

func TestStatusWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	if got := env.run(t, "/", "status", "", nil); got != "You are not signed in." {
		t.Errorf("status = %q", got)
	}
}

func TestRuntimeReportsVersions(t *testing.T) {
	env := newTestEnv(t)
	got := env.run(t, "/", "runtime", "", nil)
	if !strings.Contains(got, "go ") || !strings.Contains(got, "relaybot test") {
		t.Errorf("runtime = %q", got)
	}
}

func TestHelpListsCommands(t *testing.T) {
	env := newTestEnv(t)
	got := env.run(t, "/", "help", "", nil)
	for _, want := range []string{"/base64url", "#mcp", "/help"} {
		if !strings.Contains(got, want) {
			t.Errorf("help output missing %q:\n%s", want, got)
		}
	}
}

func TestMCPListEmpty(t *testing.T) {
	env := newTestEnv(t)
	if got := env.run(t, "#", "mcp", "list", nil); got != "You have no tool servers configured." {
		t.Errorf("mcp list = %q", got)
	}
}

func TestMCPEditStoresServersAndDeletesAgent(t *testing.T) {
	env := newTestEnv(t)
	state := &models.ConversationState{AgentID: "agent_1", ThreadID: "thread_1"}

	edit := `[{"serverLabel":"docs","serverUrl":"https://example.org/mcp","allowedTools":["search"]}]`
	got := env.run(t, "#", "mcp", "edit "+edit, state)
	if !strings.Contains(got, "Saved 1 tool server(s)") {
		t.Errorf("edit reply = %q", got)
	}

	doc, err := env.store.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("store Get() error = %v", err)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].Label != "docs" {
		t.Errorf("stored servers = %+v", doc.Servers)
	}

	if state.HasAgent() {
		t.Error("agent still attached after edit, want delete + rebuild on next message")
	}
	if len(env.runtime.deleted) != 1 {
		t.Errorf("deleted agents = %v", env.runtime.deleted)
	}

	listed := env.run(t, "#", "mcp", "list", nil)
	if !strings.Contains(listed, "docs") || !strings.Contains(listed, "search") {
		t.Errorf("mcp list = %q", listed)
	}
}

func TestMCPEditRejectsInvalidList(t *testing.T) {
	env := newTestEnv(t)

	got := env.run(t, "#", "mcp", `edit [{"serverLabel":"has space","serverUrl":"https://x"}]`, nil)
	if !strings.Contains(got, "Invalid tool server list") {
		t.Errorf("edit reply = %q", got)
	}

	if _, err := env.store.Get(context.Background(), "user-1"); !errors.Is(err, toolcfg.ErrNotFound) {
		t.Errorf("store modified on invalid edit: %v", err)
	}
}

func TestMCPHelp(t *testing.T) {
	env := newTestEnv(t)
	got := env.run(t, "#", "mcp", "help", nil)
	if !strings.Contains(got, "#mcp edit") || !strings.Contains(got, "serverLabel") {
		t.Errorf("mcp help = %q", got)
	}
}
