package teams

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaybot/relaybot/internal/channels"
	"github.com/relaybot/relaybot/pkg/models"
)

// streamChannelData is the Teams streaming-message envelope carried in
// channelData of informative and streaming updates.
type streamChannelData struct {
	StreamType     string `json:"streamType"`
	StreamSequence int    `json:"streamSequence,omitempty"`
	StreamID       string `json:"streamId,omitempty"`
}

// activityResponder replies on the conversation an activity arrived on.
type activityResponder struct {
	adapter *Adapter
	inbound *models.Activity
}

func (a *Adapter) newResponder(inbound *models.Activity) *activityResponder {
	return &activityResponder{adapter: a, inbound: inbound}
}

// reply builds an outbound activity addressed back to the sender.
func (r *activityResponder) reply(activityType models.ActivityType, text string) *models.Activity {
	return &models.Activity{
		Type:         activityType,
		From:         r.inbound.Recipient,
		Recipient:    r.inbound.From,
		Conversation: r.inbound.Conversation,
		Text:         text,
	}
}

// SendText sends one plain message, splitting texts that exceed the
// channel's message size limit.
func (r *activityResponder) SendText(ctx context.Context, text string) error {
	chunker := channels.Chunker{MaxSize: channels.DefaultMaxMessageLength}
	for _, part := range chunker.Split(text) {
		if err := r.adapter.sendActivity(ctx, r.inbound, r.reply(models.ActivityMessage, part)); err != nil {
			return err
		}
	}
	return nil
}

// OpenStream starts a streamed reply on the conversation.
func (r *activityResponder) OpenStream(ctx context.Context) channels.ReplyStream {
	return &replyStream{
		responder: r,
		streamID:  uuid.NewString(),
		pacing:    r.adapter.pacing,
	}
}

// replyStream implements the Teams streaming-reply protocol: an
// informative update, paced typing updates carrying the text so far,
// and a final message with the complete reply.
type replyStream struct {
	responder *activityResponder
	streamID  string
	pacing    time.Duration

	mu       sync.Mutex
	text     strings.Builder
	sequence int
	lastSent time.Time
}

func (s *replyStream) QueueInformative(text string) {
	s.mu.Lock()
	s.sequence++
	seq := s.sequence
	s.mu.Unlock()

	s.push(models.ActivityTyping, text, "informative", seq)
}

func (s *replyStream) QueueChunk(text string) {
	s.mu.Lock()
	s.text.WriteString(text)
	snapshot := s.text.String()
	now := time.Now()
	if now.Sub(s.lastSent) < s.pacing {
		s.mu.Unlock()
		return
	}
	s.lastSent = now
	s.sequence++
	seq := s.sequence
	s.mu.Unlock()

	s.push(models.ActivityTyping, snapshot, "streaming", seq)
}

// Close sends the final message carrying the complete reply text.
func (s *replyStream) Close(ctx context.Context) error {
	s.mu.Lock()
	full := s.text.String()
	s.mu.Unlock()

	if strings.TrimSpace(full) == "" {
		return nil
	}

	chunker := channels.Chunker{MaxSize: channels.DefaultMaxMessageLength}
	parts := chunker.Split(full)
	for i, part := range parts {
		activity := s.responder.reply(models.ActivityMessage, part)
		// Only the last part terminates the stream.
		if i == len(parts)-1 {
			activity.ChannelData = mustMarshal(streamChannelData{
				StreamType: "final",
				StreamID:   s.streamID,
			})
		}
		if err := s.responder.adapter.sendActivity(ctx, s.responder.inbound, activity); err != nil {
			return err
		}
	}
	return nil
}

// push sends a stream update; failures are logged, not surfaced, since
// intermediate updates are cosmetic.
func (s *replyStream) push(activityType models.ActivityType, text, streamType string, seq int) {
	activity := s.responder.reply(activityType, text)
	activity.ChannelData = mustMarshal(streamChannelData{
		StreamType:     streamType,
		StreamSequence: seq,
		StreamID:       s.streamID,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.responder.adapter.sendActivity(ctx, s.responder.inbound, activity); err != nil {
		s.responder.adapter.logger.Warn("stream update failed", "stream_type", streamType, "error", err)
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
