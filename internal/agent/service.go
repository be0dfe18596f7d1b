// Package agent implements the streaming chat-completion core: it fills
// a prompt template, records a session, streams the upstream response
// with retry/resume, and reconciles the terminal outcome back into the
// session record.
package agent

import (
	"context"
	"fmt"

	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/ident"
	"github.com/hawkfin/hawkd/internal/logging"
	"github.com/hawkfin/hawkd/internal/template"
)

// SubmitRequest carries one user-initiated prompt execution.
type SubmitRequest struct {
	TemplateText     string
	Values           map[string]string
	UserID           string
	SessionType      domain.SessionType
	TemplateCategory string
	TemplateIndex    int // 1-based, 0 when not template-driven
}

// SubmitResult is the terminal outcome of a submission.
type SubmitResult struct {
	Session     *domain.Session
	Result      Result
	DisplayText string
}

// Service wires the submission data flow: template filler -> session
// store -> streaming engine -> reconciler.
type Service struct {
	gen        *ident.Generator
	sessions   SessionStore
	engine     *Engine
	reconciler *Reconciler
	log        *logging.Logger
}

// NewService assembles the agent service.
func NewService(gen *ident.Generator, sessions SessionStore, engine *Engine, log *logging.Logger) *Service {
	return &Service{
		gen:        gen,
		sessions:   sessions,
		engine:     engine,
		reconciler: NewReconciler(sessions, log),
		log:        log.Sub("agent"),
	}
}

// Submit runs one prompt execution to a terminal state. The session row
// is created best-effort before the stream opens, so a degraded store
// never blocks the user-visible chat flow. onDelta (optional) observes
// the growing response text.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, onDelta DeltaFunc) SubmitResult {
	prompt := template.Fill(req.TemplateText, req.Values)
	messageUID, instructionID := s.gen.NextPair()

	sessionType := req.SessionType
	if sessionType == "" {
		sessionType = domain.SessionTypeTemplate
	}

	sess := s.sessions.Create(prompt, messageUID, instructionID, req.UserID,
		sessionType, req.TemplateCategory, req.TemplateIndex)

	s.log.Info().
		Str("messageUid", messageUID).
		Str("instructionId", instructionID).
		Str("category", req.TemplateCategory).
		Msg("submitting prompt")

	res := s.engine.Run(ctx, Request{
		Prompt:        prompt,
		MessageUID:    messageUID,
		InstructionID: instructionID,
		Category:      req.TemplateCategory,
	}, onDelta)

	display := s.reconciler.Finalize(Request{
		MessageUID:    messageUID,
		InstructionID: instructionID,
	}, res)

	s.log.Info().
		Str("messageUid", messageUID).
		Str("state", string(res.State)).
		Int("attempts", res.Attempts).
		Bool("truncated", res.Truncated).
		Msg("submission finished")

	return SubmitResult{Session: sess, Result: res, DisplayText: display}
}

// MarkCompletion records the user's judgment of a finished session,
// overriding the automatic status for success-rate computation.
func (s *Service) MarkCompletion(messageUID string, status domain.CompletionStatus) error {
	if status != domain.CompletionComplete && status != domain.CompletionIncomplete {
		return fmt.Errorf("invalid completion status %q", status)
	}
	sess, err := s.sessions.Get(messageUID)
	if err != nil {
		return err
	}
	if !sess.Status.Terminal() {
		return fmt.Errorf("session %s is still %s", messageUID, sess.Status)
	}
	s.sessions.Update(messageUID, domain.SessionPatch{CompletionStatus: &status})
	return nil
}

// Rate records 1-5 user feedback on a finished session.
func (s *Service) Rate(messageUID string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be 1-5, got %d", rating)
	}
	sess, err := s.sessions.Get(messageUID)
	if err != nil {
		return err
	}
	if !sess.Status.Terminal() {
		return fmt.Errorf("session %s is still %s", messageUID, sess.Status)
	}
	s.sessions.Update(messageUID, domain.SessionPatch{Rating: &rating})
	return nil
}
