package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineBufferRetainsPartialLine(t *testing.T) {
	var b lineBuffer

	lines := b.feed("data: {\"a\"")
	assert.Empty(t, lines)

	lines = b.feed(":1}\ndata: partial")
	require.Len(t, lines, 1)
	assert.Equal(t, `data: {"a":1}`, lines[0])

	assert.Equal(t, "data: partial", b.flush())
	assert.Empty(t, b.flush())
}

func TestLineBufferStripsCarriageReturn(t *testing.T) {
	var b lineBuffer
	lines := b.feed("one\r\ntwo\n")
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestParseFrameDataLine(t *testing.T) {
	f, err := parseFrame(`data: {"event":"agent_message","answer":"Hel","conversation_id":"c-1"}`)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "agent_message", f.Event)
	assert.Equal(t, "Hel", f.Answer)
	assert.Equal(t, "c-1", f.ConversationID)

	text, ok := f.messageFragment()
	assert.True(t, ok)
	assert.Equal(t, "Hel", text)
	assert.False(t, f.terminal())
}

func TestParseFrameNonDataLinesIgnored(t *testing.T) {
	for _, line := range []string{"", "event: ping", ": keepalive", "data:"} {
		f, err := parseFrame(line)
		assert.NoError(t, err, line)
		assert.Nil(t, f, line)
	}
}

func TestParseFrameMalformedJSON(t *testing.T) {
	f, err := parseFrame(`data: {not json`)
	assert.Error(t, err)
	assert.Nil(t, f)
}

func TestTerminalEvents(t *testing.T) {
	for _, event := range []string{"message_end", "workflow_finished"} {
		f, err := parseFrame(`data: {"event":"` + event + `"}`)
		require.NoError(t, err)
		assert.True(t, f.terminal(), event)
	}
}

func TestExtractUsageProbeOrder(t *testing.T) {
	tests := []struct {
		name string
		line string
		in   int
		out  int
	}{
		{
			name: "metadata.usage preferred",
			line: `data: {"metadata":{"usage":{"input_tokens":10,"output_tokens":5}},"usage":{"input_tokens":99,"output_tokens":99}}`,
			in:   10, out: 5,
		},
		{
			name: "top-level usage",
			line: `data: {"usage":{"input_tokens":7,"output_tokens":3}}`,
			in:   7, out: 3,
		},
		{
			name: "data.usage",
			line: `data: {"data":{"usage":{"input_tokens":2,"output_tokens":1}}}`,
			in:   2, out: 1,
		},
		{
			name: "prompt/completion aliases",
			line: `data: {"usage":{"prompt_tokens":4,"completion_tokens":6}}`,
			in:   4, out: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := parseFrame(tt.line)
			require.NoError(t, err)
			u := extractUsage(f)
			require.NotNil(t, u)
			assert.Equal(t, tt.in, u.InputTokens)
			assert.Equal(t, tt.out, u.OutputTokens)
		})
	}
}

func TestExtractUsageAbsent(t *testing.T) {
	f, err := parseFrame(`data: {"event":"agent_message","answer":"x"}`)
	require.NoError(t, err)
	assert.Nil(t, extractUsage(f))

	// An empty usage object does not count as usage.
	f, err = parseFrame(`data: {"usage":{}}`)
	require.NoError(t, err)
	assert.Nil(t, extractUsage(f))
}

func TestApplyFrameMonotonicAccumulation(t *testing.T) {
	e := &Engine{log: silentLog().Sub("test")}
	res := &Result{}

	var observed []string
	onDelta := func(text string) { observed = append(observed, text) }

	frames := []string{
		`{"event":"agent_message","answer":"Hel"}`,
		`{"event":"agent_message","answer":"lo"}`,
		`{"event":"message_end"}`,
	}

	var terminal bool
	for _, raw := range frames {
		f, err := parseFrame("data: " + raw)
		require.NoError(t, err)
		terminal = e.applyFrame(f, res, onDelta)
	}

	assert.True(t, terminal)
	assert.Equal(t, "Hello", res.ResponseText)
	assert.Equal(t, []string{"Hel", "Hello"}, observed)
}

func TestApplyFrameCapturesIdsOnce(t *testing.T) {
	e := &Engine{log: silentLog().Sub("test")}
	res := &Result{}

	first, err := parseFrame(`data: {"conversation_id":"c-1","task_id":"t-1"}`)
	require.NoError(t, err)
	e.applyFrame(first, res, nil)

	second, err := parseFrame(`data: {"conversation_id":"c-2","task_id":"t-2"}`)
	require.NoError(t, err)
	e.applyFrame(second, res, nil)

	assert.Equal(t, "c-1", res.ConversationID)
	assert.Equal(t, "t-1", res.TaskID)
}
