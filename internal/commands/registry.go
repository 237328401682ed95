package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry manages command registrations and execution.
type Registry struct {
	commands map[string]*Command // prefix+name -> command
	aliases  map[string]string   // prefix+alias -> prefix+name
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates a command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
		logger:   logger.With("component", "commands"),
	}
}

func key(prefix, name string) string {
	return prefix + strings.ToLower(strings.TrimSpace(name))
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command is nil")
	}
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command handler is required")
	}
	if cmd.Prefix == "" {
		cmd.Prefix = "/"
	}

	k := key(cmd.Prefix, cmd.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[k]; exists {
		return fmt.Errorf("command %q already registered", k)
	}
	if existing, exists := r.aliases[k]; exists {
		return fmt.Errorf("command name %q conflicts with alias for %q", k, existing)
	}

	r.commands[k] = cmd

	for _, alias := range cmd.Aliases {
		ak := key(cmd.Prefix, alias)
		if ak == k || ak == cmd.Prefix {
			continue
		}
		if _, exists := r.commands[ak]; exists {
			r.logger.Warn("alias conflicts with command", "alias", ak, "command", k)
			continue
		}
		if _, exists := r.aliases[ak]; exists {
			r.logger.Warn("alias already registered", "alias", ak, "command", k)
			continue
		}
		r.aliases[ak] = k
	}

	r.logger.Debug("registered command", "name", k, "aliases", cmd.Aliases)
	return nil
}

// Get retrieves a command by prefix and name or alias.
func (r *Registry) Get(prefix, name string) (*Command, bool) {
	k := key(prefix, name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if cmd, exists := r.commands[k]; exists {
		return cmd, true
	}
	if real, exists := r.aliases[k]; exists {
		if cmd, exists := r.commands[real]; exists {
			return cmd, true
		}
	}
	return nil, false
}

// List returns all registered commands sorted by prefix then name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		commands = append(commands, cmd)
	}
	sort.Slice(commands, func(i, j int) bool {
		if commands[i].Prefix != commands[j].Prefix {
			return commands[i].Prefix < commands[j].Prefix
		}
		return commands[i].Name < commands[j].Name
	})
	return commands
}

// ListVisible returns commands that should be shown in help.
func (r *Registry) ListVisible() []*Command {
	all := r.List()
	visible := make([]*Command, 0, len(all))
	for _, cmd := range all {
		if !cmd.Hidden {
			visible = append(visible, cmd)
		}
	}
	return visible
}

// Execute runs the invocation's command.
func (r *Registry) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	if inv == nil {
		return nil, fmt.Errorf("invocation is nil")
	}

	cmd, exists := r.Get(inv.Prefix, inv.Name)
	if !exists {
		return nil, fmt.Errorf("command %q not found", inv.Prefix+inv.Name)
	}

	if !cmd.AcceptsArgs && strings.TrimSpace(inv.Args) != "" {
		return &Result{Text: fmt.Sprintf("Command %s%s does not accept arguments.", cmd.Prefix, cmd.Name)}, nil
	}

	inv.Command = cmd
	return cmd.Handler(ctx, inv)
}
