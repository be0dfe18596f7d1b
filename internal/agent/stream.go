package agent

import (
	"encoding/json"
	"strings"

	"github.com/hawkfin/hawkd/internal/domain"
)

// SSE data-line prefix. Frames arrive as newline-delimited
// "data: {json}" lines; other SSE fields (event:, id:) are not used by
// the upstream and are ignored.
const dataPrefix = "data:"

// Terminal and message event names observed on the upstream stream.
const (
	eventAgentMessage     = "agent_message"
	eventMessage          = "message"
	eventMessageEnd       = "message_end"
	eventWorkflowFinished = "workflow_finished"
)

// frame is one decoded stream event. Every field is optional; absence is
// tolerated throughout.
type frame struct {
	ConversationID string          `json:"conversation_id"`
	TaskID         string          `json:"task_id"`
	Event          string          `json:"event"`
	Answer         string          `json:"answer"`
	Usage          *usagePayload   `json:"usage"`
	Metadata       *frameMetadata  `json:"metadata"`
	Data           *frameEventData `json:"data"`
}

type frameMetadata struct {
	Usage *usagePayload `json:"usage"`
}

type frameEventData struct {
	Usage *usagePayload `json:"usage"`
}

// usagePayload tolerates both input/output and prompt/completion key
// spellings, which coexist across upstream versions.
type usagePayload struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	TotalTokens      int `json:"total_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (u *usagePayload) toDomain() *domain.TokenUsage {
	in := u.InputTokens
	if in == 0 {
		in = u.PromptTokens
	}
	out := u.OutputTokens
	if out == 0 {
		out = u.CompletionTokens
	}
	if in == 0 && out == 0 && u.TotalTokens == 0 {
		return nil
	}
	return &domain.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: u.TotalTokens}
}

// usageProbes is the ordered list of locations token usage may appear
// in, tried in sequence; first hit wins for a given frame. Data-driven
// so new upstream shapes are one entry, not new control flow.
var usageProbes = []func(f *frame) *usagePayload{
	func(f *frame) *usagePayload {
		if f.Metadata != nil {
			return f.Metadata.Usage
		}
		return nil
	},
	func(f *frame) *usagePayload { return f.Usage },
	func(f *frame) *usagePayload {
		if f.Data != nil {
			return f.Data.Usage
		}
		return nil
	},
}

// extractUsage probes a frame for token usage. Returns nil when no
// location carries a non-empty usage object.
func extractUsage(f *frame) *domain.TokenUsage {
	for _, probe := range usageProbes {
		if p := probe(f); p != nil {
			if u := p.toDomain(); u != nil {
				return u
			}
		}
	}
	return nil
}

// terminal reports whether the frame explicitly ends the stream.
func (f *frame) terminal() bool {
	return f.Event == eventMessageEnd || f.Event == eventWorkflowFinished
}

// messageFragment returns the incremental answer text, if any.
func (f *frame) messageFragment() (string, bool) {
	if (f.Event == eventAgentMessage || f.Event == eventMessage) && f.Answer != "" {
		return f.Answer, true
	}
	return "", false
}

// parseFrame decodes one SSE data line. Returns nil for non-data lines;
// a malformed JSON payload returns an error so the caller can log and
// skip it without aborting the stream.
func parseFrame(line string) (*frame, error) {
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" {
		return nil, nil
	}

	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// lineBuffer assembles complete lines from arbitrary chunk boundaries.
// Only complete lines are released; a trailing partial line is retained
// for the next chunk.
type lineBuffer struct {
	rest string
}

// feed appends a chunk and returns all complete lines now available.
func (b *lineBuffer) feed(chunk string) []string {
	b.rest += chunk
	var lines []string
	for {
		idx := strings.IndexByte(b.rest, '\n')
		if idx < 0 {
			return lines
		}
		line := strings.TrimRight(b.rest[:idx], "\r")
		b.rest = b.rest[idx+1:]
		lines = append(lines, line)
	}
}

// flush returns any retained partial line. Called when the stream ends;
// a final unterminated data line is still worth parsing.
func (b *lineBuffer) flush() string {
	line := strings.TrimRight(b.rest, "\r")
	b.rest = ""
	return line
}
