package toolcfg

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/relaybot/relaybot/pkg/models"
)

func TestBuildRegistry_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	servers := []models.ToolServer{
		{Label: "docs", URL: "https://example.org", AllowedTools: []string{"search"}},
		{Label: "github", URL: "https://gitmcp.example/repo", AllowedTools: []string{"search_code", "read_file"}},
		{Label: "learn", URL: "https://learn.example/api/mcp", AllowedTools: nil},
	}
	if err := store.Put(ctx, &Document{ID: "user-1", Servers: servers}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	registry, err := BuildRegistry(ctx, store, "user-1")
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if len(registry) != len(servers) {
		t.Fatalf("registry entries = %d, want %d", len(registry), len(servers))
	}
	for i, srv := range servers {
		got := registry[i]
		if got.Label != srv.Label || got.URL != srv.URL {
			t.Errorf("entry %d = %+v, want %+v", i, got, srv)
		}
		if len(got.AllowedTools) != len(srv.AllowedTools) {
			t.Errorf("entry %d allowed tools = %v, want %v", i, got.AllowedTools, srv.AllowedTools)
		}
	}
}

func TestBuildRegistry_NoConfiguration(t *testing.T) {
	registry, err := BuildRegistry(context.Background(), NewMemoryStore(), "nobody")
	if !errors.Is(err, ErrNoConfiguration) {
		t.Fatalf("err = %v, want ErrNoConfiguration", err)
	}
	if len(registry) != 0 {
		t.Errorf("registry = %v, want empty", registry)
	}
}

func TestMemoryStore_GetCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Put(ctx, &Document{ID: "u", Servers: []models.ToolServer{{Label: "a", URL: "https://a"}}}); err != nil {
		t.Fatal(err)
	}

	doc, err := store.Get(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	doc.Servers[0].Label = "mutated"

	again, err := store.Get(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if again.Servers[0].Label != "a" {
		t.Error("Get returned a shared slice; stored document was mutated")
	}
}

func TestParseServers(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
		wantLen int
	}{
		{
			name:    "valid list",
			raw:     `[{"serverLabel":"docs","serverUrl":"https://example.org","allowedTools":["search"]}]`,
			wantLen: 1,
		},
		{
			name:    "empty list",
			raw:     `[]`,
			wantLen: 0,
		},
		{
			name:    "not json",
			raw:     `{nope`,
			wantErr: "invalid JSON",
		},
		{
			name:    "missing url",
			raw:     `[{"serverLabel":"docs"}]`,
			wantErr: "invalid tool server list",
		},
		{
			name:    "unknown field",
			raw:     `[{"serverLabel":"docs","serverUrl":"https://x","token":"leak"}]`,
			wantErr: "invalid tool server list",
		},
		{
			name:    "label with illegal characters",
			raw:     `[{"serverLabel":"my docs!","serverUrl":"https://x"}]`,
			wantErr: "must match",
		},
		{
			name:    "empty label",
			raw:     `[{"serverLabel":"","serverUrl":"https://x"}]`,
			wantErr: "label",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			servers, err := ParseServers(tt.raw)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServers: %v", err)
			}
			if len(servers) != tt.wantLen {
				t.Errorf("servers = %d, want %d", len(servers), tt.wantLen)
			}
		})
	}
}

func TestValidateServers_AllOrNothing(t *testing.T) {
	servers := []models.ToolServer{
		{Label: "good", URL: "https://ok.example"},
		{Label: "bad label", URL: "https://ok.example"},
	}
	if err := ValidateServers(servers); err == nil {
		t.Fatal("expected validation error")
	}
}
