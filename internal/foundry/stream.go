package foundry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/relaybot/relaybot/internal/agents"
)

// eventStream parses the server-sent-event body of a streamed run into
// typed events. Recv returns io.EOF once the terminal "done" event
// arrives or the body ends.
type eventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger
	done    bool
}

func newEventStream(body io.ReadCloser, logger *slog.Logger) *eventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &eventStream{body: body, scanner: scanner, logger: logger}
}

func (s *eventStream) Recv() (agents.Event, error) {
	if s.done {
		return agents.Event{}, io.EOF
	}

	var eventName string
	var data strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// A blank line terminates one SSE event.
		if line == "" {
			if eventName == "" && data.Len() == 0 {
				continue
			}
			ev, terminal, skip := s.convert(eventName, data.String())
			if terminal {
				s.done = true
				return agents.Event{}, io.EOF
			}
			if skip {
				eventName = ""
				data.Reset()
				continue
			}
			return ev, nil
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := s.scanner.Err(); err != nil {
		return agents.Event{}, fmt.Errorf("read stream: %w", err)
	}
	s.done = true
	return agents.Event{}, io.EOF
}

// convert maps one SSE event to the runtime event union. terminal marks
// the end of the stream; skip drops events that carry nothing for the
// caller.
func (s *eventStream) convert(name, data string) (ev agents.Event, terminal, skip bool) {
	if name == "done" || data == "[DONE]" {
		return agents.Event{}, true, false
	}

	switch name {
	case "thread.run.created":
		run, err := parseRunEvent(data)
		if err != nil {
			s.logger.Warn("bad run event payload", "event", name, "error", err)
			return agents.Event{}, false, true
		}
		return agents.Event{Kind: agents.EventRunCreated, Run: run, Raw: name}, false, false

	case "thread.message.delta":
		var delta messageDeltaEvent
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			s.logger.Warn("bad delta payload", "error", err)
			return agents.Event{}, false, true
		}
		text := delta.text()
		if text == "" {
			return agents.Event{}, false, true
		}
		return agents.Event{Kind: agents.EventMessageDelta, Delta: text, Raw: name}, false, false

	case "thread.run.requires_action":
		run, err := parseRunEvent(data)
		if err != nil {
			s.logger.Warn("bad run event payload", "event", name, "error", err)
			return agents.Event{}, false, true
		}
		return agents.Event{Kind: agents.EventRunRequiresAction, Run: run, Raw: name}, false, false

	case "thread.run.completed":
		run, _ := parseRunEvent(data)
		return agents.Event{Kind: agents.EventRunCompleted, Run: run, Raw: name}, false, false

	case "thread.run.failed", "thread.run.cancelled", "thread.run.expired":
		run, _ := parseRunEvent(data)
		if run == nil {
			run = &agents.Run{}
		}
		// The payload may be unparsable; the event name still says how
		// the run ended.
		if run.Status == "" {
			run.Status = agents.RunStatus(strings.TrimPrefix(name, "thread.run."))
		}
		return agents.Event{Kind: agents.EventRunFailed, Run: run, Raw: name}, false, false

	case "error":
		var errEv errorEvent
		_ = json.Unmarshal([]byte(data), &errEv)
		s.logger.Error("stream error event", "payload", string(errEv.Error))
		return agents.Event{Kind: agents.EventRunFailed, Raw: name}, false, false

	default:
		return agents.Event{Kind: agents.EventUnknown, Raw: name}, false, false
	}
}

func (s *eventStream) Close() error {
	return s.body.Close()
}

func parseRunEvent(data string) (*agents.Run, error) {
	var run runResource
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, err
	}
	return convertRun(&run), nil
}
