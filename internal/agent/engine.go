package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hawkfin/hawkd/internal/config"
	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/logging"
)

// State of one logical streaming request.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Markers appended to the response text on degraded completion. Partial
// output is preserved and the marker signals what happened inline.
const (
	truncationMarker = "\n\n[response truncated: stream ended without a completion event]"
	errorMarkerFmt   = "\n\n[error: agent request failed after %d attempts: %v]"
)

// RetryPolicy bounds stream retries: linear backoff capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig converts the config retry block.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.MaxDelayMs) * time.Millisecond,
	}
}

// Delay returns the backoff before retry attempt n (1-indexed):
// min(BaseDelay*n, MaxDelay).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay * time.Duration(n)
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Request identifies one logical streaming submission.
type Request struct {
	Prompt        string
	MessageUID    string
	InstructionID string
	Category      string // routing key
}

// Result is the terminal outcome of a streaming request.
type Result struct {
	State          State
	ResponseText   string
	Usage          *domain.TokenUsage
	ConversationID string
	TaskID         string
	Attempts       int
	Truncated      bool
	Err            error
}

// DeltaFunc receives the full accumulated response text after every
// appended fragment, enabling live typewriter rendering.
type DeltaFunc func(accumulated string)

// Engine drives one streaming request through the
// Idle -> Sending -> Streaming -> {Completed, Failed} state machine,
// retrying truncated or failed transports within the policy budget.
//
// The response buffer is never reset across retries: a resumed stream
// appends to the same accumulating text, so callers see continuous
// output rather than a restart.
type Engine struct {
	client *Client
	policy RetryPolicy
	log    *logging.Logger

	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

// NewEngine creates an engine with the given client and retry policy.
func NewEngine(client *Client, policy RetryPolicy, log *logging.Logger) *Engine {
	return &Engine{
		client: client,
		policy: policy,
		log:    log.Sub("agent.engine"),
		sleep:  time.Sleep,
	}
}

// Run executes one logical request to a terminal state. Frames are
// processed strictly in arrival order; onDelta (optional) observes the
// monotonically growing response buffer.
func (e *Engine) Run(ctx context.Context, req Request, onDelta DeltaFunc) Result {
	res := Result{State: StateIdle}
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		res.Attempts = attempt
		res.State = StateSending

		if err := ctx.Err(); err != nil {
			res.State = StateCancelled
			res.Err = err
			return res
		}

		body, err := e.client.Open(ctx, req.Category, req.Prompt, req.MessageUID, req.InstructionID, res.ConversationID)
		if err != nil {
			lastErr = err
			e.log.Warn().Err(err).Int("attempt", attempt).Str("messageUid", req.MessageUID).Msg("stream open failed")
			if e.backoffOrGiveUp(ctx, attempt, &res) {
				continue
			}
			return e.fail(req, &res, lastErr)
		}

		res.State = StateStreaming
		outcome, err := e.consume(ctx, body, req, &res, onDelta)
		body.Close()

		switch outcome {
		case outcomeTerminal:
			// Explicit end-of-stream event: completion is committed, no
			// further retries regardless of what the transport does.
			res.State = StateCompleted
			return res
		case outcomeCancelled:
			res.State = StateCancelled
			res.Err = ctx.Err()
			return res
		case outcomeTruncated:
			e.log.Warn().Int("attempt", attempt).Str("messageUid", req.MessageUID).Msg("stream closed without terminal event")
			if e.backoffOrGiveUp(ctx, attempt, &res) {
				continue
			}
			// Exhausted retries on a clean close: a possibly-incomplete
			// answer beats losing the partial output.
			res.State = StateCompleted
			res.Truncated = true
			res.ResponseText += truncationMarker
			return res
		case outcomeTransportErr:
			lastErr = err
			e.log.Warn().Err(err).Int("attempt", attempt).Str("messageUid", req.MessageUID).Msg("stream read failed")
			if e.backoffOrGiveUp(ctx, attempt, &res) {
				continue
			}
			return e.fail(req, &res, lastErr)
		}
	}

	return e.fail(req, &res, lastErr)
}

type outcome int

const (
	outcomeTerminal outcome = iota
	outcomeTruncated
	outcomeTransportErr
	outcomeCancelled
)

// consume reads the stream to its end, applying frame semantics to res.
func (e *Engine) consume(ctx context.Context, body io.Reader, req Request, res *Result, onDelta DeltaFunc) (outcome, error) {
	var buf lineBuffer
	chunk := make([]byte, 4096)

	apply := func(line string) bool {
		f, err := parseFrame(line)
		if err != nil {
			// One malformed frame must not abort the stream.
			e.log.Debug().Err(err).Str("messageUid", req.MessageUID).Msg("skipping malformed frame")
			return false
		}
		if f == nil {
			return false
		}
		return e.applyFrame(f, res, onDelta)
	}

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			for _, line := range buf.feed(string(chunk[:n])) {
				if apply(line) {
					return outcomeTerminal, nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line := buf.flush(); line != "" && apply(line) {
					return outcomeTerminal, nil
				}
				return outcomeTruncated, nil
			}
			if ctx.Err() != nil {
				return outcomeCancelled, ctx.Err()
			}
			return outcomeTransportErr, err
		}
	}
}

// applyFrame folds one frame into the result. Returns true on a
// terminal event.
func (e *Engine) applyFrame(f *frame, res *Result, onDelta DeltaFunc) bool {
	// Correlation ids are captured once and reused for resumption.
	if res.ConversationID == "" && f.ConversationID != "" {
		res.ConversationID = f.ConversationID
	}
	if res.TaskID == "" && f.TaskID != "" {
		res.TaskID = f.TaskID
	}

	if u := extractUsage(f); u != nil {
		// Last-seen usage wins.
		res.Usage = u
	}

	if text, ok := f.messageFragment(); ok {
		res.ResponseText += text
		if onDelta != nil {
			onDelta(res.ResponseText)
		}
	}

	return f.terminal()
}

// backoffOrGiveUp sleeps before the next attempt when budget remains.
// Returns false once the budget is exhausted or the context is done.
func (e *Engine) backoffOrGiveUp(ctx context.Context, attempt int, res *Result) bool {
	if attempt >= e.policy.MaxAttempts {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	e.sleep(e.policy.Delay(attempt))
	return true
}

func (e *Engine) fail(req Request, res *Result, lastErr error) Result {
	if lastErr == nil {
		lastErr = fmt.Errorf("agent request failed")
	}
	res.State = StateFailed
	res.Err = lastErr
	res.ResponseText += fmt.Sprintf(errorMarkerFmt, res.Attempts, lastErr)
	e.log.Error().Err(lastErr).Str("messageUid", req.MessageUID).Int("attempts", res.Attempts).Msg("agent request failed")
	return *res
}
