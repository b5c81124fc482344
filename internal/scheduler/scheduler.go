// Package scheduler implements the TurnScheduler: the loop
// that drives one model turn from a user message to completion, streaming
// the model response, dispatching tool calls through the execution
// pipeline, and halting on protocol violations, repeated tool failure, or
// the round cap.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"time"

	vtctx "vtcode/internal/context"
	"vtcode/internal/core"
	"vtcode/internal/llm"
	"vtcode/internal/obslog"
	"vtcode/internal/tools"
)

// Defaults match the documented configuration defaults.
const (
	DefaultMaxRounds              = 25
	DefaultMaxConsecutiveFailures = 3
	DefaultMaxTransportRetries    = 3
)

// Config bundles Scheduler dependencies.
type Config struct {
	LLM            llm.Client
	Model          string
	Pipeline       *tools.Pipeline
	Registry       *tools.Registry
	ContextManager *vtctx.Manager
	Accountant     *vtctx.Accountant
	Emitter        *core.Emitter
	Budget         vtctx.Budget

	MaxRounds              int
	MaxConsecutiveFailures int
	MaxTransportRetries    int
}

// Scheduler runs turns against Config's dependencies.
type Scheduler struct {
	cfg Config
}

// New constructs a Scheduler, applying documented defaults where unset.
func New(cfg Config) *Scheduler {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if cfg.MaxTransportRetries <= 0 {
		cfg.MaxTransportRetries = DefaultMaxTransportRetries
	}
	return &Scheduler{cfg: cfg}
}

// RunTurn drives one turn to completion, appending every produced message
// (assistant text, tool_call, tool_result) to history as it goes so a
// caller observing ctx cancellation mid-turn still sees a consistent,
// resumable log.
func (s *Scheduler) RunTurn(ctx context.Context, turnID, systemPrompt string, history *core.ConversationHistory) core.TurnOutcome {
	s.cfg.Emitter.TurnStarted(turnID)

	consecutiveFailures := 0
	var modifiedFiles []string
	usage := core.Usage{}
	seenCallIDs := map[string]bool{}

	for round := 0; round < s.cfg.MaxRounds; round++ {
		select {
		case <-ctx.Done():
			return core.TurnOutcome{Kind: core.OutcomeCancelled}
		default:
		}

		curation, err := s.cfg.ContextManager.Curate(history.Messages(), s.cfg.Budget)
		if err != nil {
			s.cfg.Emitter.TurnFailed(turnID, err.Error())
			return core.TurnOutcome{Kind: core.OutcomeBudgetExhausted, Reason: err.Error()}
		}

		req := s.buildRequest(curation.Messages, systemPrompt)
		stream, err := s.streamWithRetry(ctx, req)
		if err != nil {
			s.cfg.Emitter.TurnFailed(turnID, err.Error())
			return core.TurnOutcome{Kind: core.OutcomeFailed, Reason: err.Error()}
		}

		assistantMsg, toolCalls, roundUsage, err := s.consumeStream(ctx, turnID, round, stream)
		usage.PromptTokens += roundUsage.PromptTokens
		usage.CompletionTokens += roundUsage.CompletionTokens
		if err != nil {
			if ctx.Err() != nil {
				return core.TurnOutcome{Kind: core.OutcomeCancelled}
			}
			reason := fmt.Sprintf("llm stream error: %v", err)
			s.cfg.Emitter.TurnFailed(turnID, reason)
			return core.TurnOutcome{Kind: core.OutcomeFailed, Reason: reason}
		}

		history.Append(assistantMsg)

		if len(toolCalls) == 0 {
			s.cfg.Emitter.TurnCompleted(turnID, usage)
			am := assistantMsg
			return core.TurnOutcome{Kind: core.OutcomeCompleted, Assistant: &am}
		}

		if dup := duplicateCallID(toolCalls, seenCallIDs); dup != "" {
			reason := fmt.Sprintf("protocol_violation: duplicate tool_call id %q within turn", dup)
			s.cfg.Emitter.TurnFailed(turnID, reason)
			return core.TurnOutcome{Kind: core.OutcomeFailed, Reason: reason}
		}

		// Tool calls within a turn execute strictly sequentially.
		for _, tc := range toolCalls {
			result := s.cfg.Pipeline.Execute(ctx, turnID, tc, &modifiedFiles)
			history.Append(toolResultMessage(tc, result))

			if result.Status == core.StatusFailure || result.Status == core.StatusTimeout {
				consecutiveFailures++
			} else {
				consecutiveFailures = 0
			}
			if consecutiveFailures >= s.cfg.MaxConsecutiveFailures {
				reason := fmt.Sprintf("halted after %d consecutive tool failures", consecutiveFailures)
				s.cfg.Emitter.TurnFailed(turnID, reason)
				return core.TurnOutcome{Kind: core.OutcomeFailed, Reason: reason}
			}
		}
	}

	reason := fmt.Sprintf("round cap (%d) exceeded", s.cfg.MaxRounds)
	s.cfg.Emitter.TurnFailed(turnID, reason)
	return core.TurnOutcome{Kind: core.OutcomeFailed, Reason: reason}
}

func (s *Scheduler) buildRequest(messages []core.Message, systemPrompt string) llm.Request {
	req := llm.Request{Model: s.cfg.Model}
	if systemPrompt != "" {
		req.Messages = append(req.Messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, toLLMMessage(m))
	}
	if s.cfg.Registry != nil {
		for _, t := range s.cfg.Registry.All() {
			d := t.Descriptor()
			req.Tools = append(req.Tools, llm.ToolDecl{Name: d.Name, Description: d.Description, Parameters: d.Schema})
		}
	}
	return req
}

func toLLMMessage(m core.Message) llm.Message {
	switch m.Role {
	case core.RoleSystem:
		return llm.Message{Role: llm.RoleSystem, Content: m.Text()}
	case core.RoleUser:
		return llm.Message{Role: llm.RoleUser, Content: m.Text()}
	case core.RoleTool:
		return llm.Message{Role: llm.RoleTool, Content: m.Text(), ToolCallID: m.ToolID}
	default: // assistant
		lm := llm.Message{Role: llm.RoleAssistant, Content: m.Text()}
		for _, tc := range m.ToolCalls() {
			lm.ToolCalls = append(lm.ToolCalls, llm.ToolCallReq{ID: tc.ID, Name: tc.Name, Arguments: string(tc.Arguments)})
		}
		return lm
	}
}

// streamWithRetry retries any error returned by StreamCompletion (it does
// not distinguish transport failures from other errors) up to
// MaxTransportRetries with exponential backoff. Errors while reading the
// opened stream are not retried, nor are tool failures.
func (s *Scheduler) streamWithRetry(ctx context.Context, req llm.Request) (llm.Stream, error) {
	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt <= s.cfg.MaxTransportRetries; attempt++ {
		if attempt > 0 {
			obslog.Warn("scheduler", "retrying llm stream", obslog.Fields{"attempt": attempt, "error": lastErr.Error()})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		stream, err := s.cfg.LLM.StreamCompletion(ctx, req)
		if err == nil {
			return stream, nil
		}
		lastErr = err
	}
	return nil, core.Wrap(core.ErrLlmTransportError, "exhausted retries", lastErr)
}

// consumeStream reads every Delta from stream, emitting item lifecycle
// events for the assistant message and any reasoning text as they arrive,
// and assembling tool call arguments from partial deltas.
func (s *Scheduler) consumeStream(ctx context.Context, turnID string, round int, stream llm.Stream) (core.Message, []core.ToolCall, core.Usage, error) {
	defer stream.Close()

	msgItemID := fmt.Sprintf("msg-%s-%d", turnID, round)
	reasoningItemID := fmt.Sprintf("reasoning-%s-%d", turnID, round)

	var text, reasoning string
	textStarted, reasoningStarted := false, false
	type partial struct {
		name string
		args string
	}
	builders := map[string]*partial{}
	var order []string
	usage := core.Usage{}

	for {
		d, err := stream.Recv(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return core.Message{}, nil, usage, err
		}

		switch d.Kind {
		case llm.DeltaText:
			if !textStarted {
				s.cfg.Emitter.ItemStarted(turnID, core.Item{ID: msgItemID, Kind: core.ItemAgentMessage})
				textStarted = true
			}
			text += d.Text
			s.cfg.Emitter.ItemUpdated(turnID, core.Item{ID: msgItemID, Kind: core.ItemAgentMessage, Text: text}, d.Text)

		case llm.DeltaReasoning:
			if !reasoningStarted {
				s.cfg.Emitter.ItemStarted(turnID, core.Item{ID: reasoningItemID, Kind: core.ItemReasoning})
				reasoningStarted = true
			}
			reasoning += d.Text
			s.cfg.Emitter.ItemUpdated(turnID, core.Item{ID: reasoningItemID, Kind: core.ItemReasoning, Text: reasoning}, d.Text)

		case llm.DeltaToolCallPart:
			b, ok := builders[d.ToolCallID]
			if !ok {
				b = &partial{}
				builders[d.ToolCallID] = b
				order = append(order, d.ToolCallID)
			}
			if d.ToolCallName != "" {
				b.name = d.ToolCallName
			}
			b.args += d.ArgsFragment

		case llm.DeltaUsage:
			usage.PromptTokens += d.PromptTokens
			usage.CompletionTokens += d.CompletionTokens

		case llm.DeltaEnd:
			for _, tc := range d.ToolCalls {
				b, ok := builders[tc.ID]
				if !ok {
					b = &partial{}
					builders[tc.ID] = b
					order = append(order, tc.ID)
				}
				if tc.Name != "" {
					b.name = tc.Name
				}
				if tc.Arguments != "" {
					b.args = tc.Arguments
				}
			}
		}
	}

	if textStarted {
		s.cfg.Emitter.ItemCompleted(turnID, core.Item{ID: msgItemID, Kind: core.ItemAgentMessage, Text: text})
	}
	if reasoningStarted {
		s.cfg.Emitter.ItemCompleted(turnID, core.Item{ID: reasoningItemID, Kind: core.ItemReasoning, Text: reasoning})
	}

	msg := core.Message{Role: core.RoleAssistant, Created: time.Now()}
	if text != "" {
		msg.Parts = append(msg.Parts, core.MessagePart{Kind: core.PartText, Text: text})
	}
	if reasoning != "" {
		msg.Parts = append(msg.Parts, core.MessagePart{Kind: core.PartReasoning, Reasoning: reasoning})
	}

	var toolCalls []core.ToolCall
	for _, id := range order {
		b := builders[id]
		if b == nil || b.name == "" {
			continue
		}
		tc := core.ToolCall{ID: id, Name: b.name, Arguments: []byte(b.args)}
		toolCalls = append(toolCalls, tc)
		msg.Parts = append(msg.Parts, core.MessagePart{Kind: core.PartToolCall, ToolCall: &tc})
	}

	return msg, toolCalls, usage, nil
}

func toolResultMessage(tc core.ToolCall, result core.ToolResult) core.Message {
	return core.Message{
		Role:    core.RoleTool,
		ToolID:  tc.ID,
		Created: time.Now(),
		Parts:   []core.MessagePart{{Kind: core.PartToolResult, ToolResult: &result}},
	}
}

// duplicateCallID returns the first id in calls already present in seen
// (ids from earlier rounds of the turn, or earlier in calls), recording
// every id it checks in seen.
func duplicateCallID(calls []core.ToolCall, seen map[string]bool) string {
	for _, c := range calls {
		if seen[c.ID] {
			return c.ID
		}
		seen[c.ID] = true
	}
	return ""
}
