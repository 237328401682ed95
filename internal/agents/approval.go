package agents

import (
	"log/slog"

	"github.com/relaybot/relaybot/internal/config"
)

// ApprovalRelay builds tool-approval records for runs paused on
// requires_action. Every MCP tool call is approved; the headers attached
// depend on the tool server: ordinary servers get a fixed placeholder
// secret header, while the one privileged server named in configuration
// receives its distinct secret instead.
type ApprovalRelay struct {
	defaultHeader    string
	defaultSecret    string
	privilegedLabel  string
	privilegedSecret string
	logger           *slog.Logger
}

// NewApprovalRelay creates a relay from the approvals configuration.
func NewApprovalRelay(cfg config.ApprovalsConfig, logger *slog.Logger) *ApprovalRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalRelay{
		defaultHeader:    cfg.DefaultHeader,
		defaultSecret:    cfg.DefaultSecret,
		privilegedLabel:  cfg.PrivilegedLabel,
		privilegedSecret: cfg.PrivilegedSecret,
		logger:           logger.With("component", "approvals"),
	}
}

// Build constructs approval records for the run's pending tool calls.
// Calls of kinds other than "mcp" are skipped. An empty result means
// there is nothing to approve and the caller should cancel the run.
func (r *ApprovalRelay) Build(calls []ToolCall) []Approval {
	approvals := make([]Approval, 0, len(calls))
	for _, call := range calls {
		if call.Kind != "mcp" {
			r.logger.Debug("skipping non-mcp tool call", "tool_call_id", call.ID, "kind", call.Kind)
			continue
		}
		r.logger.Info("approving tool call",
			"tool_call_id", call.ID,
			"name", call.Name,
			"server_label", call.ServerLabel,
		)
		approvals = append(approvals, Approval{
			ToolCallID: call.ID,
			Approve:    true,
			Headers:    r.headersFor(call.ServerLabel),
		})
	}
	return approvals
}

func (r *ApprovalRelay) headersFor(label string) map[string]string {
	if r.privilegedLabel != "" && label == r.privilegedLabel {
		return map[string]string{r.defaultHeader: r.privilegedSecret}
	}
	return map[string]string{r.defaultHeader: r.defaultSecret}
}
