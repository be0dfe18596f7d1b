package domain

import "time"

// SessionType distinguishes how a session was initiated.
type SessionType string

const (
	SessionTypeTemplate SessionType = "template"
	SessionTypeAgent    SessionType = "agent"
)

// SessionStatus is the system-assigned lifecycle state of a session.
// Transitions are forward-only: pending -> completed | failed | cancelled.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CompletionStatus is an optional user override of the system status,
// recorded when a human judges a finished response complete or not.
type CompletionStatus string

const (
	CompletionComplete   CompletionStatus = "complete"
	CompletionIncomplete CompletionStatus = "incomplete"
)

// TokenUsage tracks token consumption reported by the upstream agent.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Total returns the explicit total when present, otherwise input+output.
func (u TokenUsage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.InputTokens + u.OutputTokens
}

// SessionMetadata is the free-form bag persisted alongside a session.
// The prompt text, upstream correlation ids, and user feedback live here.
type SessionMetadata struct {
	PromptText       string           `json:"promptText,omitempty"`
	ConversationID   string           `json:"conversationId,omitempty"`
	TaskID           string           `json:"taskId,omitempty"`
	CompletionStatus CompletionStatus `json:"completionStatus,omitempty"`
	Rating           int              `json:"rating,omitempty"`
}

// Session is one record per user-initiated prompt execution.
// MessageUID and InstructionID are generated once per submission, never
// reused, and embedded into the outbound request for correlation.
type Session struct {
	MessageUID       string          `json:"messageUid"`
	InstructionID    string          `json:"instructionId"`
	UserID           string          `json:"userId"`
	SessionType      SessionType     `json:"sessionType"`
	Status           SessionStatus   `json:"status"`
	TemplateCategory string          `json:"templateCategory,omitempty"`
	TemplateIndex    int             `json:"templateIndex,omitempty"` // 1-based, 0 = unset
	ResponseText     string          `json:"responseText,omitempty"`
	TokenUsage       *TokenUsage     `json:"tokenUsage,omitempty"`
	Metadata         SessionMetadata `json:"metadata"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// SessionPatch is a partial update applied to a session by message_uid.
// Nil fields are left untouched.
type SessionPatch struct {
	Status           *SessionStatus
	ResponseText     *string
	TokenUsage       *TokenUsage
	ConversationID   *string
	TaskID           *string
	CompletionStatus *CompletionStatus
	Rating           *int
}
