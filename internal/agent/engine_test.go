package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkfin/hawkd/internal/config"
	"github.com/hawkfin/hawkd/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

// streamServer records every request body and serves a scripted response
// per attempt.
type streamServer struct {
	mu     sync.Mutex
	bodies []chatRequest
	script []func(w http.ResponseWriter)
	srv    *httptest.Server
}

func newStreamServer(t *testing.T, script ...func(w http.ResponseWriter)) *streamServer {
	t.Helper()
	s := &streamServer{script: script}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		s.mu.Lock()
		attempt := len(s.bodies)
		s.bodies = append(s.bodies, body)
		s.mu.Unlock()

		if attempt >= len(s.script) {
			attempt = len(s.script) - 1
		}
		s.script[attempt](w)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *streamServer) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

func (s *streamServer) body(i int) chatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[i]
}

func sseFrames(frames ...string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			if fl != nil {
				fl.Flush()
			}
		}
	}
}

func serverError(w http.ResponseWriter) {
	http.Error(w, "upstream unavailable", http.StatusBadGateway)
}

func testEngine(t *testing.T, baseURL string, maxAttempts int) *Engine {
	t.Helper()
	client := NewClient(config.AgentConfig{
		User:    "hawk-agent-admin",
		Default: config.RouteEntry{BaseURL: baseURL, APIKey: "test-key"},
	}, silentLog())
	e := NewEngine(client, RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   1500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}, silentLog())
	e.sleep = func(time.Duration) {}
	return e
}

func TestEngineCompletesOnTerminalEvent(t *testing.T) {
	srv := newStreamServer(t, sseFrames(
		`{"event":"agent_message","answer":"Hel","conversation_id":"c-9","task_id":"t-9"}`,
		`{"event":"agent_message","answer":"lo"}`,
		`{"event":"message_end","metadata":{"usage":{"input_tokens":12,"output_tokens":4}}}`,
	))
	e := testEngine(t, srv.srv.URL, 3)

	var deltas []string
	res := e.Run(context.Background(), Request{
		Prompt:        "test prompt",
		MessageUID:    "MSG_UID_0001",
		InstructionID: "INST0001",
	}, func(text string) { deltas = append(deltas, text) })

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, "Hello", res.ResponseText)
	assert.Equal(t, []string{"Hel", "Hello"}, deltas)
	assert.Equal(t, "c-9", res.ConversationID)
	assert.Equal(t, "t-9", res.TaskID)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 12, res.Usage.InputTokens)
	assert.Equal(t, 4, res.Usage.OutputTokens)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Truncated)
	assert.NoError(t, res.Err)
}

func TestEngineNoRetryAfterTerminalEvent(t *testing.T) {
	srv := newStreamServer(t, sseFrames(
		`{"event":"agent_message","answer":"done"}`,
		`{"event":"message_end"}`,
	))
	e := testEngine(t, srv.srv.URL, 3)

	res := e.Run(context.Background(), Request{MessageUID: "MSG_UID_0002", Prompt: "p"}, nil)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 1, srv.attempts())
}

func TestEngineTruncationExhaustionCompletesWithMarker(t *testing.T) {
	// Every attempt streams a fragment and closes cleanly without a
	// terminal event.
	srv := newStreamServer(t,
		sseFrames(`{"event":"agent_message","answer":"partial "}`),
		sseFrames(`{"event":"agent_message","answer":"more "}`),
		sseFrames(`{"event":"agent_message","answer":"text"}`),
	)
	e := testEngine(t, srv.srv.URL, 3)

	res := e.Run(context.Background(), Request{MessageUID: "MSG_UID_0003", Prompt: "p"}, nil)

	assert.Equal(t, StateCompleted, res.State)
	assert.True(t, res.Truncated)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, srv.attempts())
	// Buffer accumulates across retries, never resets.
	assert.Equal(t, "partial more text"+truncationMarker, res.ResponseText)
}

func TestEngineTransportExhaustionFailsWithMarker(t *testing.T) {
	srv := newStreamServer(t,
		serverError,
		serverError,
		serverError,
	)
	e := testEngine(t, srv.srv.URL, 3)

	res := e.Run(context.Background(), Request{MessageUID: "MSG_UID_0004", Prompt: "p"}, nil)

	assert.Equal(t, StateFailed, res.State)
	assert.Error(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, srv.attempts())
	assert.Contains(t, res.ResponseText, "[error: agent request failed after 3 attempts:")
	assert.Contains(t, res.Err.Error(), "502")
}

func TestEngineRetryReusesConversationID(t *testing.T) {
	// First attempt surfaces a conversation id then closes truncated;
	// the retry must carry it for resumption, the first must not.
	srv := newStreamServer(t,
		sseFrames(`{"event":"agent_message","answer":"a","conversation_id":"c-42"}`),
		sseFrames(`{"event":"agent_message","answer":"b"}`, `{"event":"message_end"}`),
	)
	e := testEngine(t, srv.srv.URL, 3)

	res := e.Run(context.Background(), Request{MessageUID: "MSG_UID_0005", Prompt: "p"}, nil)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, "ab", res.ResponseText)
	require.Equal(t, 2, srv.attempts())
	assert.Empty(t, srv.body(0).ConversationID)
	assert.Equal(t, "c-42", srv.body(1).ConversationID)
}

func TestEngineRecoversAfterTransientFailure(t *testing.T) {
	srv := newStreamServer(t,
		serverError,
		sseFrames(`{"event":"agent_message","answer":"ok"}`, `{"event":"message_end"}`),
	)
	e := testEngine(t, srv.srv.URL, 3)

	res := e.Run(context.Background(), Request{MessageUID: "MSG_UID_0006", Prompt: "p"}, nil)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, "ok", res.ResponseText)
	assert.Equal(t, 2, res.Attempts)
	assert.NoError(t, res.Err)
}

func TestEngineCancelledBeforeOpen(t *testing.T) {
	srv := newStreamServer(t, sseFrames(`{"event":"message_end"}`))
	e := testEngine(t, srv.srv.URL, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Run(ctx, Request{MessageUID: "MSG_UID_0007", Prompt: "p"}, nil)

	assert.Equal(t, StateCancelled, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 0, srv.attempts())
}

func TestEngineRequestShape(t *testing.T) {
	srv := newStreamServer(t, sseFrames(`{"event":"message_end"}`))
	e := testEngine(t, srv.srv.URL, 1)

	e.Run(context.Background(), Request{
		Prompt:        "calculate exposure",
		MessageUID:    "MSG_UID_0008",
		InstructionID: "INST0008",
	}, nil)

	require.Equal(t, 1, srv.attempts())
	body := srv.body(0)
	assert.Equal(t, "[MSG_UID: MSG_UID_0008] [INSTRUCTION_ID: INST0008] calculate exposure", body.Query)
	assert.Equal(t, "hawk-agent-admin", body.User)
	assert.Equal(t, "streaming", body.ResponseMode)
	assert.Equal(t, "MSG_UID_0008", body.Inputs["msg_uid"])
	assert.Equal(t, "INST0008", body.Inputs["instruction_id"])
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 1500 * time.Millisecond, MaxDelay: 5 * time.Second}
	assert.Equal(t, 1500*time.Millisecond, p.Delay(1))
	assert.Equal(t, 3*time.Second, p.Delay(2))
	assert.Equal(t, 4500*time.Millisecond, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
}

func TestClientRouteFallback(t *testing.T) {
	client := NewClient(config.AgentConfig{
		Default: config.RouteEntry{BaseURL: "https://default.example"},
		Routes: map[string]config.RouteEntry{
			"fx-hedge": {BaseURL: "https://fx.example"},
		},
	}, silentLog())

	assert.Equal(t, "https://fx.example", client.Route("fx-hedge").BaseURL)
	assert.Equal(t, "https://default.example", client.Route("unknown").BaseURL)
	assert.Equal(t, "https://default.example", client.Route("").BaseURL)
}
