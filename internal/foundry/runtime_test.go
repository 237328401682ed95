package foundry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/relaybot/relaybot/internal/agents"
	"github.com/relaybot/relaybot/pkg/models"
)

// staticCredential satisfies azcore.TokenCredential without hitting
// Entra.
type staticCredential struct{}

func (staticCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "test-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func testBackend(t *testing.T, handler http.Handler) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL, staticCredential{}, &ClientOptions{HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return NewBackend(client)
}

func TestCreateAgentSendsToolDefinitions(t *testing.T) {
	var got createAgentRequest
	backend := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assistants" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("api-version") == "" {
			t.Error("api-version query parameter missing")
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(agentResource{ID: "agent_abc"})
	}))

	id, err := backend.CreateAgent(context.Background(), agents.AgentSpec{
		Name:         "relay-agent-x",
		Model:        "gpt-4o",
		Instructions: "do things",
		Servers: []models.ToolServer{
			{Label: "docs", URL: "https://docs.example/mcp", AllowedTools: []string{"search"}},
		},
	})
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	if id != "agent_abc" {
		t.Errorf("id = %q, want agent_abc", id)
	}
	if len(got.Tools) != 1 {
		t.Fatalf("tools = %+v, want one mcp tool", got.Tools)
	}
	tool := got.Tools[0]
	if tool.Type != "mcp" || tool.ServerLabel != "docs" || tool.ServerURL != "https://docs.example/mcp" {
		t.Errorf("tool = %+v", tool)
	}
}

func TestEnsureThreadRecreatesMissingThread(t *testing.T) {
	backend := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_gone":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "not_found", "message": "no such thread"}})
		case r.Method == http.MethodPost && r.URL.Path == "/threads":
			json.NewEncoder(w).Encode(threadResource{ID: "thread_new"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	id, err := backend.EnsureThread(context.Background(), "thread_gone")
	if err != nil {
		t.Fatalf("EnsureThread() error = %v", err)
	}
	if id != "thread_new" {
		t.Errorf("thread id = %q, want thread_new", id)
	}
}

func TestSubmitApprovalsWireShape(t *testing.T) {
	var got submitToolOutputsRequest
	backend := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/t1/runs/r1/submit_tool_outputs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(runResource{ID: "r1", Status: "in_progress"})
	}))

	approvals := []agents.Approval{
		{ToolCallID: "call_1", Approve: true, Headers: map[string]string{"SuperSecret": "123456"}},
	}
	if err := backend.SubmitApprovals(context.Background(), "t1", "r1", approvals); err != nil {
		t.Fatalf("SubmitApprovals() error = %v", err)
	}

	if got.ToolOutputs == nil || len(got.ToolOutputs) != 0 {
		t.Errorf("tool_outputs = %v, want present and empty", got.ToolOutputs)
	}
	if len(got.ToolApprovals) != 1 {
		t.Fatalf("tool_approvals = %+v, want one entry", got.ToolApprovals)
	}
	a := got.ToolApprovals[0]
	if a.ToolCallID != "call_1" || !a.Approve || a.Headers["SuperSecret"] != "123456" {
		t.Errorf("approval = %+v", a)
	}
	if got.Stream {
		t.Error("stream = true, want false for the polling path")
	}
}

func TestListTranscriptJoinsTextParts(t *testing.T) {
	backend := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/t1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if order := r.URL.Query().Get("order"); order != "asc" {
			t.Errorf("order = %q, want asc", order)
		}
		json.NewEncoder(w).Encode(listResponse[messageResource]{
			Object: "list",
			Data: []messageResource{
				{ID: "m1", Role: "user", Content: []messageContent{{Type: "text", Text: &messageText{Value: "hi"}}}},
				{ID: "m2", Role: "assistant", Content: []messageContent{
					{Type: "text", Text: &messageText{Value: "Hello, "}},
					{Type: "text", Text: &messageText{Value: "world"}},
				}},
			},
		})
	}))

	messages, err := backend.ListTranscript(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ListTranscript() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[1].Role != "assistant" || messages[1].Text != "Hello, world" {
		t.Errorf("message = %+v", messages[1])
	}
}

func TestAPIErrorSurfacesCodeAndStatus(t *testing.T) {
	backend := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "rate_limit_exceeded", "message": "slow down"}})
	}))

	_, err := backend.GetRun(context.Background(), "t1", "r1")
	if err == nil {
		t.Fatal("GetRun() error = nil, want APIError")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not an APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Code != "rate_limit_exceeded" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}
