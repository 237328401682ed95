// Package channels defines the boundary between the bot and the chat
// transport. The transport itself (activity delivery, reply routing,
// streamed-message framing) is owned by the hosting service; this package
// only models the surface the handlers program against.
package channels

import (
	"context"

	"github.com/relaybot/relaybot/pkg/models"
)

// Responder delivers replies for the activity currently being handled.
type Responder interface {
	// SendText sends one complete text reply.
	SendText(ctx context.Context, text string) error

	// OpenStream opens a streamed reply. The caller must close the
	// stream exactly once, after which no further chunks may be queued.
	OpenStream(ctx context.Context) ReplyStream
}

// ReplyStream delivers an assistant reply incrementally. Chunks are
// forwarded to the transport in the order queued; implementations enforce
// a minimum pacing gap between deliveries so the transport receives them
// in order.
type ReplyStream interface {
	// QueueInformative sends a transient status line ahead of the reply
	// body ("starting process...").
	QueueInformative(text string)

	// QueueChunk appends reply text to the stream.
	QueueChunk(text string)

	// Close flushes pending chunks and sends the end-of-stream marker.
	Close(ctx context.Context) error
}

// Handler processes one inbound activity. The hosting service delivers
// one activity at a time per conversation and awaits completion before
// delivering the next.
type Handler func(ctx context.Context, activity *models.Activity, responder Responder) error
