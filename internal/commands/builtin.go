package commands

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/relaybot/relaybot/internal/agents"
	"github.com/relaybot/relaybot/internal/toolcfg"
	"github.com/relaybot/relaybot/pkg/models"
)

// ProfileService resolves the caller's identity. It is satisfied by
// internal/identity.
type ProfileService interface {
	// TokenPresent reports whether the token is a usable sign-in token.
	TokenPresent(token string) bool

	// Profile exchanges the delegated token and returns the caller's
	// directory profile as JSON.
	Profile(ctx context.Context, userToken string) (string, error)
}

// BuiltinDeps carries the collaborators the built-in commands need.
type BuiltinDeps struct {
	Store    toolcfg.Store
	Manager  *agents.Manager
	Profiles ProfileService

	// Version is the build version reported by /runtime.
	Version string
}

// RegisterBuiltins registers the built-in commands.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) {
	mustRegister := func(cmd *Command) {
		if err := r.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register builtin command %q: %v", cmd.Name, err))
		}
	}

	mustRegister(&Command{
		Name:        "help",
		Prefix:      "/",
		Aliases:     []string{"h", "?"},
		Description: "Show available commands",
		Usage:       "/help",
		Handler:     helpHandler(r),
	})

	mustRegister(&Command{
		Name:        "status",
		Prefix:      "/",
		Description: "Report whether a sign-in token is present",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			present := inv.UserToken != ""
			if deps.Profiles != nil {
				present = deps.Profiles.TokenPresent(inv.UserToken)
			}
			if present {
				return &Result{Text: "You are signed in."}, nil
			}
			return &Result{Text: "You are not signed in."}, nil
		},
	})

	mustRegister(&Command{
		Name:        "me",
		Prefix:      "/",
		Description: "Fetch your directory profile",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			if deps.Profiles == nil {
				return &Result{Text: "Identity is not configured."}, nil
			}
			profile, err := deps.Profiles.Profile(ctx, inv.UserToken)
			if err != nil {
				return &Result{Text: "Could not fetch your profile: " + err.Error()}, nil
			}
			return &Result{Text: profile}, nil
		},
	})

	mustRegister(&Command{
		Name:        "reset",
		Prefix:      "/",
		Aliases:     []string{"clear"},
		Description: "Clear conversation state and delete the agent",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			deps.Manager.DeleteAgent(ctx, inv.State)
			*inv.State = models.ConversationState{}
			return &Result{Text: "Conversation state cleared."}, nil
		},
	})

	mustRegister(&Command{
		Name:        "count",
		Prefix:      "/",
		Description: "Report the running message count",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			return &Result{Text: fmt.Sprintf("%d messages", inv.State.Count)}, nil
		},
	})

	mustRegister(&Command{
		Name:        "diag",
		Prefix:      "/",
		Description: "Dump the raw inbound activity as JSON",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			data, err := json.MarshalIndent(inv.Activity, "", "  ")
			if err != nil {
				return &Result{Text: "Could not serialize the activity: " + err.Error()}, nil
			}
			return &Result{Text: string(data)}, nil
		},
	})

	mustRegister(&Command{
		Name:        "state",
		Prefix:      "/",
		Description: "Dump the conversation state as JSON",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			data, err := json.MarshalIndent(inv.State, "", "  ")
			if err != nil {
				return &Result{Text: "Could not serialize the state: " + err.Error()}, nil
			}
			return &Result{Text: string(data)}, nil
		},
	})

	mustRegister(&Command{
		Name:        "runtime",
		Prefix:      "/",
		Description: "Report host runtime and build versions",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			return &Result{Text: fmt.Sprintf("go %s (%s/%s), relaybot %s",
				runtime.Version(), runtime.GOOS, runtime.GOARCH, deps.Version)}, nil
		},
	})

	mustRegister(&Command{
		Name:        "base64url",
		Prefix:      "/",
		Description: "Encode or decode URL-safe base64",
		Usage:       "/base64url [-d] <text>",
		AcceptsArgs: true,
		Handler:     base64urlHandler,
	})

	mustRegister(&Command{
		Name:        "mcp",
		Prefix:      "#",
		Description: "Manage your tool servers",
		Usage:       "#mcp help | list | edit <json-array>",
		AcceptsArgs: true,
		Handler:     mcpHandler(deps),
	})
}

func helpHandler(r *Registry) Handler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		var b strings.Builder
		b.WriteString("Available commands:\n")
		for _, cmd := range r.ListVisible() {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Prefix + cmd.Name
			}
			fmt.Fprintf(&b, "%s - %s\n", usage, cmd.Description)
		}
		return &Result{Text: strings.TrimRight(b.String(), "\n")}, nil
	}
}

func base64urlHandler(ctx context.Context, inv *Invocation) (*Result, error) {
	args := strings.TrimSpace(inv.Args)
	if args == "" {
		return &Result{Text: "Usage: " + inv.Command.Usage}, nil
	}

	if flag, rest := SplitArgs(args); flag == "-d" {
		if rest == "" {
			return &Result{Text: "Usage: " + inv.Command.Usage}, nil
		}
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(rest, "="))
		if err != nil {
			return &Result{Text: "Not valid URL-safe base64: " + err.Error()}, nil
		}
		return &Result{Text: string(decoded)}, nil
	}

	return &Result{Text: base64.RawURLEncoding.EncodeToString([]byte(args))}, nil
}

const mcpUsage = "#mcp list - show your tool servers\n" +
	"#mcp edit <json-array> - replace your tool servers, e.g.\n" +
	`#mcp edit [{"serverLabel":"docs","serverUrl":"https://example.org/mcp","allowedTools":["search"]}]`

func mcpHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		sub, rest := SplitArgs(inv.Args)
		switch sub {
		case "", "help":
			return &Result{Text: mcpUsage}, nil

		case "list":
			doc, err := deps.Store.Get(ctx, inv.UserID)
			if errors.Is(err, toolcfg.ErrNotFound) {
				return &Result{Text: "You have no tool servers configured."}, nil
			}
			if err != nil {
				return &Result{Text: "Could not load your tool servers: " + err.Error()}, nil
			}
			return &Result{Text: formatServers(doc.Servers)}, nil

		case "edit":
			servers, err := toolcfg.ParseServers(rest)
			if err != nil {
				return &Result{Text: "Invalid tool server list: " + err.Error() + "\n\n" + mcpUsage}, nil
			}
			if err := deps.Store.Put(ctx, &toolcfg.Document{ID: inv.UserID, Servers: servers}); err != nil {
				return &Result{Text: "Could not save your tool servers: " + err.Error()}, nil
			}
			// The agent's tool registry is fixed at creation, so the
			// current agent is deleted and rebuilt on the next message.
			deps.Manager.DeleteAgent(ctx, inv.State)
			return &Result{Text: fmt.Sprintf("Saved %d tool server(s). Your agent will be rebuilt on the next message.", len(servers))}, nil

		default:
			return &Result{Text: fmt.Sprintf("Unknown subcommand %q\n\n%s", sub, mcpUsage)}, nil
		}
	}
}

func formatServers(servers []models.ToolServer) string {
	if len(servers) == 0 {
		return "You have no tool servers configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d tool server(s):\n", len(servers))
	for _, s := range servers {
		tools := "all tools"
		if len(s.AllowedTools) > 0 {
			tools = strings.Join(s.AllowedTools, ", ")
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", s.Label, s.URL, tools)
	}
	return strings.TrimRight(b.String(), "\n")
}
