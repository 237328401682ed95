// Package models provides domain types shared across the relay bot.
package models

import (
	"encoding/json"
	"time"
)

// ActivityType identifies the kind of inbound activity delivered by the
// chat-hosting service.
type ActivityType string

const (
	ActivityMessage            ActivityType = "message"
	ActivityConversationUpdate ActivityType = "conversationUpdate"
	ActivityEndOfConversation  ActivityType = "endOfConversation"
	ActivityTyping             ActivityType = "typing"
)

// ChannelAccount identifies a user or bot on the chat service.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
	IsGroup  bool   `json:"isGroup,omitempty"`
}

// Activity is one unit of communication exchanged with the chat service.
// It mirrors the Bot Framework activity wire shape; only the fields this
// bot reads or writes are modeled.
type Activity struct {
	Type           ActivityType        `json:"type"`
	ID             string              `json:"id,omitempty"`
	Timestamp      time.Time           `json:"timestamp,omitempty"`
	ServiceURL     string              `json:"serviceUrl,omitempty"`
	ChannelID      string              `json:"channelId,omitempty"`
	From           ChannelAccount      `json:"from,omitempty"`
	Recipient      ChannelAccount      `json:"recipient,omitempty"`
	Conversation   ConversationAccount `json:"conversation,omitempty"`
	Text           string              `json:"text,omitempty"`
	ReplyToID      string              `json:"replyToId,omitempty"`
	MembersAdded   []ChannelAccount    `json:"membersAdded,omitempty"`
	MembersRemoved []ChannelAccount    `json:"membersRemoved,omitempty"`
	ChannelData    json.RawMessage     `json:"channelData,omitempty"`
}

// UserID returns the stable identity of the activity sender, preferring
// the AAD object id over the channel-scoped id.
func (a *Activity) UserID() string {
	if a.From.AADObjectID != "" {
		return a.From.AADObjectID
	}
	return a.From.ID
}
