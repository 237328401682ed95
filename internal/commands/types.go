// Package commands provides command detection and routing for the chat
// surface. Control commands use the "/" prefix; tool-server management
// uses "#".
package commands

import (
	"context"

	"github.com/relaybot/relaybot/pkg/models"
)

// Command represents a registered command.
type Command struct {
	// Name is the command name without the prefix (e.g. "status").
	Name string `json:"name"`

	// Prefix the command is reachable under, "/" or "#".
	Prefix string `json:"prefix"`

	// Aliases are alternative names for the command.
	Aliases []string `json:"aliases,omitempty"`

	// Description is a short description of what the command does.
	Description string `json:"description,omitempty"`

	// Usage shows how to use the command.
	Usage string `json:"usage,omitempty"`

	// AcceptsArgs indicates if the command accepts arguments.
	AcceptsArgs bool `json:"accepts_args"`

	// Hidden hides the command from help listings.
	Hidden bool `json:"hidden,omitempty"`

	// Handler is the function that executes the command.
	Handler Handler `json:"-"`
}

// Handler processes a command invocation.
type Handler func(ctx context.Context, inv *Invocation) (*Result, error)

// Invocation is a parsed command invocation together with the
// conversation context it executes in.
type Invocation struct {
	// Command is the matched command definition.
	Command *Command

	// Name is the actual name/alias used to invoke.
	Name string

	// Args is the text after the command name.
	Args string

	// RawText is the original message text.
	RawText string

	// Prefix is the prefix the command was invoked with.
	Prefix string

	// ConversationID identifies the conversation.
	ConversationID string

	// UserID is the caller's stable identity.
	UserID string

	// UserToken carries the caller's delegated token when the sign-in
	// flow has produced one; empty otherwise.
	UserToken string

	// Activity is the raw inbound activity.
	Activity *models.Activity

	// State is the conversation's mutable state. Handlers may modify it.
	State *models.ConversationState
}

// Result is the output of a command execution.
type Result struct {
	// Text is the response message to send.
	Text string `json:"text,omitempty"`

	// Suppress indicates no response should be sent.
	Suppress bool `json:"suppress,omitempty"`
}

// ParsedCommand represents a detected command in a message.
type ParsedCommand struct {
	// Name is the command name (without prefix).
	Name string

	// Args is the argument text.
	Args string

	// Prefix is the command prefix used.
	Prefix string
}
