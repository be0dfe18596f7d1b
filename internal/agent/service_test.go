package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkfin/hawkd/internal/config"
	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/ident"
	"github.com/hawkfin/hawkd/internal/store"
)

func testService(t *testing.T, baseURL string) (*Service, *store.MemorySessionStore) {
	t.Helper()
	log := silentLog()
	ms := store.NewMemorySessionStore(log)
	gen := ident.NewGenerator(ident.NewMemCounterStore(), log)
	client := NewClient(config.AgentConfig{
		User:    "hawk-agent-admin",
		Default: config.RouteEntry{BaseURL: baseURL},
	}, log)
	engine := NewEngine(client, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, log)
	engine.sleep = func(time.Duration) {}
	return NewService(gen, ms, engine, log), ms
}

func TestSubmitHappyPath(t *testing.T) {
	srv := newStreamServer(t, sseFrames(
		`{"event":"agent_message","answer":"EUR exposure is 1.2M","conversation_id":"c-1","task_id":"t-1"}`,
		`{"event":"message_end","metadata":{"usage":{"input_tokens":20,"output_tokens":8}}}`,
	))
	svc, ms := testService(t, srv.srv.URL)

	out := svc.Submit(context.Background(), SubmitRequest{
		TemplateText:     "Exposure for {{Entity}}",
		Values:           map[string]string{"entity": "ACME GmbH"},
		UserID:           "admin",
		TemplateCategory: "fx-hedge",
		TemplateIndex:    1,
	}, nil)

	assert.Equal(t, StateCompleted, out.Result.State)
	require.Equal(t, 1, srv.attempts())
	// Placeholder resolution is case/underscore-insensitive.
	assert.Contains(t, srv.body(0).Query, "Exposure for ACME GmbH")

	assert.Equal(t, "MSG_UID_0000", out.Session.MessageUID)
	assert.Equal(t, "INST0000", out.Session.InstructionID)

	// Display text carries the metadata suffix after the delimiter.
	assert.Contains(t, out.DisplayText, "EUR exposure is 1.2M")
	assert.Contains(t, out.DisplayText, metadataDelimiter)
	assert.Contains(t, out.DisplayText, "MSG_UID: MSG_UID_0000")
	assert.Contains(t, out.DisplayText, "CONVERSATION_ID: c-1")
	assert.Contains(t, out.DisplayText, "TOKENS: input=20 output=8 total=28")

	sess, err := ms.Get("MSG_UID_0000")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, sess.Status)
	assert.Equal(t, "c-1", sess.Metadata.ConversationID)
	require.NotNil(t, sess.TokenUsage)
	assert.Equal(t, 28, sess.TokenUsage.Total())
}

func TestSubmitFailurePersistsFailedStatus(t *testing.T) {
	srv := newStreamServer(t, serverError, serverError, serverError)
	svc, ms := testService(t, srv.srv.URL)

	out := svc.Submit(context.Background(), SubmitRequest{
		TemplateText: "plain prompt",
		UserID:       "admin",
	}, nil)

	assert.Equal(t, StateFailed, out.Result.State)
	assert.Contains(t, out.DisplayText, "[error: agent request failed after 3 attempts:")

	sess, err := ms.Get(out.Session.MessageUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, sess.Status)
}

func TestSubmitSurvivesDegradedStore(t *testing.T) {
	srv := newStreamServer(t, sseFrames(
		`{"event":"agent_message","answer":"ok"}`,
		`{"event":"message_end"}`,
	))
	svc, ms := testService(t, srv.srv.URL)
	ms.FailWrites = true

	out := svc.Submit(context.Background(), SubmitRequest{
		TemplateText: "prompt",
		UserID:       "admin",
	}, nil)

	// The chat flow completes even though nothing was persisted.
	assert.Equal(t, StateCompleted, out.Result.State)
	assert.Contains(t, out.DisplayText, "ok")
	assert.Equal(t, domain.StatusPending, out.Session.Status)
}

func TestMarkCompletion(t *testing.T) {
	srv := newStreamServer(t, sseFrames(`{"event":"message_end"}`))
	svc, ms := testService(t, srv.srv.URL)

	out := svc.Submit(context.Background(), SubmitRequest{TemplateText: "p", UserID: "u"}, nil)
	uid := out.Session.MessageUID

	require.NoError(t, svc.MarkCompletion(uid, domain.CompletionIncomplete))
	sess, err := ms.Get(uid)
	require.NoError(t, err)
	assert.Equal(t, domain.CompletionIncomplete, sess.Metadata.CompletionStatus)

	assert.Error(t, svc.MarkCompletion(uid, "bogus"))
	assert.Error(t, svc.MarkCompletion("MSG_UID_9999", domain.CompletionComplete))
}

func TestMarkCompletionRejectsNonTerminal(t *testing.T) {
	svc, ms := testService(t, "http://unused.invalid")
	ms.Create("p", "MSG_UID_0500", "INST0500", "u", domain.SessionTypeTemplate, "", 0)

	err := svc.MarkCompletion("MSG_UID_0500", domain.CompletionComplete)
	assert.ErrorContains(t, err, "still pending")
}

func TestRate(t *testing.T) {
	srv := newStreamServer(t, sseFrames(`{"event":"message_end"}`))
	svc, ms := testService(t, srv.srv.URL)

	out := svc.Submit(context.Background(), SubmitRequest{TemplateText: "p", UserID: "u"}, nil)
	uid := out.Session.MessageUID

	require.NoError(t, svc.Rate(uid, 4))
	sess, err := ms.Get(uid)
	require.NoError(t, err)
	assert.Equal(t, 4, sess.Metadata.Rating)

	assert.Error(t, svc.Rate(uid, 0))
	assert.Error(t, svc.Rate(uid, 6))
}

func TestReconcilerCancelledState(t *testing.T) {
	log := silentLog()
	ms := store.NewMemorySessionStore(log)
	ms.Create("p", "MSG_UID_0600", "INST0600", "u", domain.SessionTypeTemplate, "", 0)
	r := NewReconciler(ms, log)

	display := r.Finalize(
		Request{MessageUID: "MSG_UID_0600", InstructionID: "INST0600"},
		Result{State: StateCancelled, ResponseText: "partial answer", Err: context.Canceled},
	)

	assert.Equal(t, "partial answer", display)
	sess, err := ms.Get("MSG_UID_0600")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, sess.Status)
	assert.Equal(t, "partial answer", sess.ResponseText)
}
