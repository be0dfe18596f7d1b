package agent

import (
	"fmt"
	"strings"

	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/logging"
)

// metadataDelimiter separates the response body from the appended
// correlation/usage summary. Fixed so the UI can split it back off.
const metadataDelimiter = "\n\n---\n"

// Reconciler finalizes the persisted session record once a streaming
// request reaches a terminal state. Session writes stay best-effort;
// the store's change notification is what drives downstream
// success-rate refreshes.
type Reconciler struct {
	sessions SessionStore
	log      *logging.Logger
}

// NewReconciler creates a reconciler over the given session store.
func NewReconciler(sessions SessionStore, log *logging.Logger) *Reconciler {
	return &Reconciler{sessions: sessions, log: log.Sub("agent.reconciler")}
}

// Finalize patches the session for req according to the terminal result
// and returns the display text (response plus metadata suffix on
// success).
func (r *Reconciler) Finalize(req Request, res Result) string {
	switch res.State {
	case StateCompleted:
		display := res.ResponseText + metadataDelimiter + metadataSuffix(req, res)
		status := domain.StatusCompleted
		patch := domain.SessionPatch{
			Status:       &status,
			ResponseText: &display,
		}
		if res.Usage != nil {
			patch.TokenUsage = res.Usage
		}
		if res.ConversationID != "" {
			patch.ConversationID = &res.ConversationID
		}
		if res.TaskID != "" {
			patch.TaskID = &res.TaskID
		}
		r.sessions.Update(req.MessageUID, patch)
		return display

	case StateCancelled:
		status := domain.StatusCancelled
		r.sessions.Update(req.MessageUID, domain.SessionPatch{
			Status:       &status,
			ResponseText: &res.ResponseText,
		})
		return res.ResponseText

	default:
		status := domain.StatusFailed
		r.sessions.Update(req.MessageUID, domain.SessionPatch{
			Status:       &status,
			ResponseText: &res.ResponseText,
		})
		return res.ResponseText
	}
}

// metadataSuffix summarizes correlation identifiers and token counts
// for display beneath the response.
func metadataSuffix(req Request, res Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MSG_UID: %s | INSTRUCTION_ID: %s", req.MessageUID, req.InstructionID)
	if res.ConversationID != "" {
		fmt.Fprintf(&b, " | CONVERSATION_ID: %s", res.ConversationID)
	}
	if res.TaskID != "" {
		fmt.Fprintf(&b, " | TASK_ID: %s", res.TaskID)
	}
	if res.Usage != nil {
		fmt.Fprintf(&b, " | TOKENS: input=%d output=%d total=%d",
			res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.Total())
	}
	return b.String()
}
