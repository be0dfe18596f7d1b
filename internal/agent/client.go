package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hawkfin/hawkd/internal/config"
	"github.com/hawkfin/hawkd/internal/logging"
)

// Client issues streaming chat-completion requests to the upstream agent
// endpoints. The destination endpoint and bearer credential are a pure
// function of the routing key (template category); unknown categories
// use the default route.
type Client struct {
	user    string
	def     config.RouteEntry
	routes  map[string]config.RouteEntry
	httpc   *http.Client
	log     *logging.Logger
}

// NewClient creates a client from the agent configuration. No timeout is
// set on the HTTP client: a successful but slow stream is not
// time-bounded, only the retry budget bounds failure paths.
func NewClient(cfg config.AgentConfig, log *logging.Logger) *Client {
	return &Client{
		user:   cfg.User,
		def:    cfg.Default,
		routes: cfg.Routes,
		httpc:  &http.Client{},
		log:    log.Sub("agent.client"),
	}
}

// Route resolves the upstream route for a template category.
func (c *Client) Route(category string) config.RouteEntry {
	if r, ok := c.routes[category]; ok {
		return r
	}
	return c.def
}

// chatRequest is the outbound JSON body.
type chatRequest struct {
	ConversationID string            `json:"conversation_id"`
	Inputs         map[string]string `json:"inputs"`
	Query          string            `json:"query"`
	User           string            `json:"user"`
	ResponseMode   string            `json:"response_mode"`
}

// Open sends the streaming request and returns the response body for
// incremental reads. A non-2xx status or an absent body is reported as a
// transport error; the caller owns retry policy.
func (c *Client) Open(ctx context.Context, category, prompt, messageUID, instructionID, conversationID string) (io.ReadCloser, error) {
	route := c.Route(category)
	if route.BaseURL == "" {
		return nil, fmt.Errorf("no agent route configured for category %q", category)
	}

	body := chatRequest{
		ConversationID: conversationID,
		Inputs: map[string]string{
			"msg_uid":        messageUID,
			"instruction_id": instructionID,
		},
		Query:        fmt.Sprintf("[MSG_UID: %s] [INSTRUCTION_ID: %s] %s", messageUID, instructionID, prompt),
		User:         c.user,
		ResponseMode: "streaming",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, route.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if route.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+route.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, fmt.Errorf("agent returned empty body")
	}

	c.log.Debug().
		Str("category", category).
		Str("messageUid", messageUID).
		Msg("stream opened")
	return resp.Body, nil
}
