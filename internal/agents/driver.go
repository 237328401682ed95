package agents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/relaybot/relaybot/internal/channels"
	"github.com/relaybot/relaybot/internal/observability"
	"github.com/relaybot/relaybot/pkg/models"
)

// Driver runs one message turn against the remote agent: it ensures a
// thread exists, appends the inbound message, starts a run, and drives
// the run to a terminal state, relaying tool approvals along the way.
//
// Streaming mode is the primary path; polling is the fallback for
// backends without an event stream.
type Driver struct {
	runtime      Runtime
	relay        *ApprovalRelay
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewDriver creates a run driver.
func NewDriver(runtime Runtime, relay *ApprovalRelay, pollInterval, runTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Driver{
		runtime:      runtime,
		relay:        relay,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
		logger:       logger.With("component", "driver"),
		metrics:      metrics,
	}
}

// Respond handles one inbound message for a conversation that already has
// an agent attached. The reply is delivered through the stream, which is
// always closed before Respond returns.
func (d *Driver) Respond(ctx context.Context, state *models.ConversationState, text string, reply channels.ReplyStream) error {
	if !state.HasAgent() {
		return ErrNoAgent
	}

	if d.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.runTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.ObserveRunDuration(d.runtime.Name(), time.Since(start).Seconds())
		}
	}()

	threadID, err := d.runtime.EnsureThread(ctx, state.ThreadID)
	if err != nil {
		return fmt.Errorf("ensure thread: %w", err)
	}
	state.ThreadID = threadID
	d.logger.Info("using thread", "thread_id", threadID)

	if err := d.runtime.AddUserMessage(ctx, threadID, text); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	reply.QueueInformative("starting process...")

	if d.runtime.SupportsStreaming() {
		err = d.respondStreaming(ctx, state, reply)
	} else {
		err = d.respondPolling(ctx, state, reply)
	}

	if closeErr := reply.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// respondPolling drives the run by re-fetching its status at a fixed
// cadence until it reaches a terminal state, then delivers the
// assistant's text from the thread transcript.
func (d *Driver) respondPolling(ctx context.Context, state *models.ConversationState, reply channels.ReplyStream) error {
	run, err := d.runtime.CreateRun(ctx, state.ThreadID, state.AgentID, state.ToolServers)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	d.logger.Info("created run", "run_id", run.ID)

	for run.Status.Active() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}

		run, err = d.runtime.GetRun(ctx, state.ThreadID, run.ID)
		if err != nil {
			return fmt.Errorf("fetch run: %w", err)
		}

		if run.Status == StatusRequiresAction {
			cancelled, err := d.approve(ctx, run)
			if err != nil {
				return err
			}
			if cancelled {
				break
			}
		}
	}

	d.logger.Info("run finished", "run_id", run.ID, "status", run.Status)
	d.recordRun(run.Status)

	switch run.Status {
	case StatusFailed, StatusCancelled, StatusExpired:
		d.reportFailure(run, reply)
		return nil
	}

	d.logRunSteps(ctx, state.ThreadID, run.ID)
	return d.deliverTranscript(ctx, state.ThreadID, reply)
}

// respondStreaming consumes the run's live event stream. When a
// requires_action event arrives, approvals are submitted and the current
// stream is replaced by the resubmission's stream; the loop then
// continues on the new stream, so arbitrarily many approval rounds never
// grow the call stack.
func (d *Driver) respondStreaming(ctx context.Context, state *models.ConversationState, reply channels.ReplyStream) error {
	stream, err := d.runtime.StreamRun(ctx, state.ThreadID, state.AgentID, state.ToolServers)
	if err != nil {
		return fmt.Errorf("start run stream: %w", err)
	}
	defer func() {
		if stream != nil {
			stream.Close()
		}
	}()

	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run stream: %w", err)
		}

		switch event.Kind {
		case EventRunCreated:
			if event.Run != nil {
				d.logger.Info("created run", "run_id", event.Run.ID)
			}

		case EventMessageDelta:
			reply.QueueChunk(event.Delta)

		case EventRunRequiresAction:
			if event.Run == nil {
				continue
			}
			next, cancelled, err := d.resumeStream(ctx, event.Run)
			if err != nil {
				return err
			}
			if cancelled {
				d.recordRun(StatusCancelled)
				return nil
			}
			stream.Close()
			stream = next

		case EventRunCompleted:
			d.recordRun(StatusCompleted)

		case EventRunFailed:
			status := StatusFailed
			if event.Run != nil && event.Run.Status != "" {
				status = event.Run.Status
			}
			d.recordRun(status)
			d.reportFailure(event.Run, reply)

		case EventUnknown:
			d.logger.Debug("ignoring unknown stream event", "event", event.Raw)
		}
	}
}

// resumeStream submits approvals for a paused run and returns the new
// event stream. cancelled is true when there was nothing to approve and
// the run was cancelled instead.
func (d *Driver) resumeStream(ctx context.Context, run *Run) (next EventStream, cancelled bool, err error) {
	approvals := d.relay.Build(run.PendingCalls)
	if len(approvals) == 0 {
		d.logger.Info("no tool calls to approve, cancelling run", "run_id", run.ID)
		if err := d.runtime.CancelRun(ctx, run.ThreadID, run.ID); err != nil {
			return nil, false, fmt.Errorf("cancel run: %w", err)
		}
		return nil, true, nil
	}

	if d.metrics != nil {
		d.metrics.RecordApprovalRound(d.runtime.Name())
	}
	next, err = d.runtime.SubmitApprovalsStream(ctx, run.ThreadID, run.ID, approvals)
	if err != nil {
		return nil, false, fmt.Errorf("submit approvals: %w", err)
	}
	return next, false, nil
}

// approve handles a requires_action pause in polling mode. cancelled is
// true when the run was cancelled because no calls were pending.
func (d *Driver) approve(ctx context.Context, run *Run) (cancelled bool, err error) {
	approvals := d.relay.Build(run.PendingCalls)
	if len(approvals) == 0 {
		d.logger.Info("no tool calls to approve, cancelling run", "run_id", run.ID)
		if err := d.runtime.CancelRun(ctx, run.ThreadID, run.ID); err != nil {
			return false, fmt.Errorf("cancel run: %w", err)
		}
		return true, nil
	}

	if d.metrics != nil {
		d.metrics.RecordApprovalRound(d.runtime.Name())
	}
	if err := d.runtime.SubmitApprovals(ctx, run.ThreadID, run.ID, approvals); err != nil {
		return false, fmt.Errorf("submit approvals: %w", err)
	}
	return false, nil
}

// logRunSteps records what a finished run actually did. Step listing is
// informational only, so failures are logged and swallowed.
func (d *Driver) logRunSteps(ctx context.Context, threadID, runID string) {
	steps, err := d.runtime.ListRunSteps(ctx, threadID, runID)
	if err != nil {
		d.logger.Warn("listing run steps failed", "run_id", runID, "error", err)
		return
	}
	for _, step := range steps {
		d.logger.Info("run step", "run_id", runID, "step_id", step.ID, "type", step.Type, "status", step.Status, "tool_calls", step.ToolCallIDs)
	}
}

// deliverTranscript streams the assistant's messages, oldest to newest,
// into the reply.
func (d *Driver) deliverTranscript(ctx context.Context, threadID string, reply channels.ReplyStream) error {
	messages, err := d.runtime.ListTranscript(ctx, threadID)
	if err != nil {
		return fmt.Errorf("list transcript: %w", err)
	}
	for _, msg := range messages {
		if !strings.EqualFold(msg.Role, "assistant") {
			continue
		}
		reply.QueueChunk(msg.Text + "\n")
	}
	return nil
}

// reportFailure tells the user why the run ended without a result. A run
// cancelled or expired on the service side gets its own wording so it is
// not reported as a failure.
func (d *Driver) reportFailure(run *Run, reply channels.ReplyStream) {
	if run == nil {
		return
	}
	switch run.Status {
	case StatusCancelled:
		d.logger.Warn("run cancelled", "run_id", run.ID)
		reply.QueueChunk("The agent run was cancelled.\n")
		return
	case StatusExpired:
		d.logger.Warn("run expired", "run_id", run.ID)
		reply.QueueChunk("The agent run expired before it finished.\n")
		if d.metrics != nil {
			d.metrics.RecordError("driver", "run_expired")
		}
		return
	}
	if run.LastError != nil {
		d.logger.Error("run failed", "run_id", run.ID, "code", run.LastError.Code, "message", run.LastError.Message)
		reply.QueueChunk(fmt.Sprintf("The agent run failed: %s\n", run.LastError.Message))
	} else {
		d.logger.Error("run failed", "run_id", run.ID)
		reply.QueueChunk("The agent run failed.\n")
	}
	if d.metrics != nil {
		d.metrics.RecordError("driver", "run_failed")
	}
}

func (d *Driver) recordRun(status RunStatus) {
	if d.metrics != nil {
		d.metrics.RecordRun(d.runtime.Name(), string(status))
	}
}
