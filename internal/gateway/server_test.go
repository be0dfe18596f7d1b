package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkfin/hawkd/internal/agent"
	"github.com/hawkfin/hawkd/internal/config"
	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/ident"
	"github.com/hawkfin/hawkd/internal/logging"
	"github.com/hawkfin/hawkd/internal/store"
)

const testToken = "test-token-123"

func silentLog() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

// sseUpstream serves a fixed happy-path agent stream.
func sseUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, f := range []string{
			`{"event":"agent_message","answer":"The hedge looks ","conversation_id":"c-1"}`,
			`{"event":"agent_message","answer":"balanced."}`,
			`{"event":"message_end","metadata":{"usage":{"input_tokens":9,"output_tokens":3}}}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", f)
			if fl != nil {
				fl.Flush()
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testGateway(t *testing.T, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.GatewayConfig{
		Port: 18793,
		Bind: "loopback",
		Auth: config.GatewayAuth{Mode: "token", Token: testToken},
	}
	srv := New(cfg, silentLog(), opts...)

	mux := http.NewServeMux()
	srv.registerHTTPRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

// dialAndConnect completes the challenge/connect handshake.
func dialAndConnect(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, EventChallenge, challenge.Event)

	connectReq, err := NewRequest("req-connect", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux"},
		Auth:        &ConnectAuth{Token: token},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(connectReq))

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, FrameTypeResponse, hello.Type)
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK, "handshake must succeed")
	return conn
}

// call performs one RPC round-trip, skipping event frames.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f
		}
	}
	t.Fatalf("no response for %s", method)
	return Frame{}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testGateway(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	// Public endpoint exposes status only.
	assert.Empty(t, health.Version)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testGateway(t)

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandshakeAndHealthRPC(t *testing.T) {
	_, ts := testGateway(t)
	conn := dialAndConnect(t, ts, testToken)

	resp := call(t, conn, "req-1", "health", nil)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Version)
	assert.Equal(t, 1, health.Clients)
}

func TestHandshakeWrongToken(t *testing.T) {
	_, ts := testGateway(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	connectReq, _ := NewRequest("req-1", "connect", ConnectParams{
		Client: ClientInfo{ID: "test-client"},
		Auth:   &ConnectAuth{Token: "wrong"},
	})
	require.NoError(t, conn.WriteJSON(connectReq))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	assert.Equal(t, "unauthorized", resp.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	_, ts := testGateway(t)
	conn := dialAndConnect(t, ts, testToken)

	resp := call(t, conn, "req-1", "no.such.method", nil)
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

func TestAgentSubmitUnavailableWithoutService(t *testing.T) {
	_, ts := testGateway(t)
	conn := dialAndConnect(t, ts, testToken)

	resp := call(t, conn, "req-1", "agent.submit", agentSubmitParams{TemplateText: "x"})
	assert.Equal(t, "unavailable", resp.Error.Code)
}

func TestAgentSubmitRoundTrip(t *testing.T) {
	upstream := sseUpstream(t)

	log := silentLog()
	sessions := store.NewMemorySessionStore(log)
	gen := ident.NewGenerator(ident.NewMemCounterStore(), log)
	client := agent.NewClient(config.AgentConfig{
		User:    "hawk-agent-admin",
		Default: config.RouteEntry{BaseURL: upstream.URL},
	}, log)
	engine := agent.NewEngine(client, agent.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}, log)
	svc := agent.NewService(gen, sessions, engine, log)

	_, ts := testGateway(t,
		WithAgent(svc),
		WithSessions(sessions),
		WithStats(agent.NewStatsService(sessions)),
	)
	conn := dialAndConnect(t, ts, testToken)

	req, err := NewRequest("req-submit", "agent.submit", agentSubmitParams{
		TemplateText:     "Check hedge for {{Entity}}",
		Values:           map[string]string{"entity": "ACME"},
		UserID:           "admin",
		TemplateCategory: "fx-hedge",
		TemplateIndex:    1,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	// Expect at least one agent.delta, an agent.done, and the response.
	var sawDelta, sawDone bool
	var resp Frame
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		switch {
		case f.Type == FrameTypeEvent && f.Event == EventAgentDelta:
			sawDelta = true
		case f.Type == FrameTypeEvent && f.Event == EventAgentDone:
			sawDone = true
		case f.Type == FrameTypeResponse && f.ID == "req-submit":
			resp = f
		}
		if sawDone && resp.Type != "" {
			break
		}
	}

	assert.True(t, sawDelta, "expected agent.delta events")
	assert.True(t, sawDone, "expected agent.done event")
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(resp.Payload, &payload))
	assert.Equal(t, "completed", payload["state"])
	assert.Equal(t, "MSG_UID_0000", payload["messageUid"])
	assert.Contains(t, payload["displayText"], "The hedge looks balanced.")

	// The session is persisted and visible via session.list.
	listResp := call(t, conn, "req-list", "session.list", nil)
	var listPayload struct {
		Sessions []domain.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(listResp.Payload, &listPayload))
	require.Len(t, listPayload.Sessions, 1)
	assert.Equal(t, domain.StatusCompleted, listPayload.Sessions[0].Status)

	// Rate and override via RPC.
	rateResp := call(t, conn, "req-rate", "session.rate", sessionRateParams{
		MessageUID: "MSG_UID_0000", Rating: 5,
	})
	assert.True(t, *rateResp.OK)

	markResp := call(t, conn, "req-mark", "session.markCompletion", markCompletionParams{
		MessageUID: "MSG_UID_0000", Status: "complete",
	})
	assert.True(t, *markResp.OK)

	// Stats reflect the override-aware success rate.
	statsResp := call(t, conn, "req-stats", "template.stats", templateStatsParams{
		TemplateCategory: "fx-hedge", TemplateIndex: 1,
	})
	var stats domain.TemplateStats
	require.NoError(t, json.Unmarshal(statsResp.Payload, &stats))
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 100, stats.SuccessRate)
}

func TestSessionListStoreError(t *testing.T) {
	sessions := store.NewMemorySessionStore(silentLog())
	sessions.FailReads = true

	_, ts := testGateway(t, WithSessions(sessions))
	conn := dialAndConnect(t, ts, testToken)

	resp := call(t, conn, "req-1", "session.list", nil)
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	assert.Equal(t, "store_error", resp.Error.Code)
}

func TestDashboardMetricsUnavailable(t *testing.T) {
	_, ts := testGateway(t)
	conn := dialAndConnect(t, ts, testToken)

	resp := call(t, conn, "req-1", "dashboard.metrics", nil)
	assert.Equal(t, "unavailable", resp.Error.Code)
}

func TestResolveBindAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:18793", resolveBindAddr(config.GatewayConfig{Bind: "loopback", Port: 18793}))
	assert.Equal(t, "0.0.0.0:18793", resolveBindAddr(config.GatewayConfig{Bind: "lan", Port: 18793}))
	assert.Equal(t, "10.0.0.5:9000", resolveBindAddr(config.GatewayConfig{Bind: "custom", Host: "10.0.0.5", Port: 9000}))
	assert.Equal(t, "127.0.0.1:1", resolveBindAddr(config.GatewayConfig{Port: 1}))
}
