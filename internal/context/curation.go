package context

import (
	"fmt"

	"vtcode/internal/core"
)

// Budget bundles the per-call budget parameters curation operates under.
type Budget struct {
	MaxTokens              int
	ReservedResponseTokens int
	// KeepRecentTurns bounds how many of the most recent turns are never
	// touched by any trimming strategy.
	KeepRecentTurns int
}

// DefaultKeepRecentTurns keeps the last 3 turns untouched by any
// trimming or summarization pass.
const DefaultKeepRecentTurns = 3

// Manager owns curation: trimming/summarizing a ConversationHistory so the
// next model request fits the provider's context window.
type Manager struct {
	accountant *Accountant
	summarize  Summarizer
}

// Summarizer produces a textual summary for a contiguous span of messages,
// invoked only as the last trimming strategy. A nil Summarizer skips that
// strategy. No LlmClient-backed implementation exists in this repository:
// cmd/vtcode's engine and the scheduler tests pass nil, so there curation
// stops after the digest and collapse strategies. Tests can supply a stub.
type Summarizer func(existingSummary string, span []core.Message) (string, error)

// NewManager returns a Manager using accountant for token counting and
// summarize for the final, most expensive trimming strategy.
func NewManager(accountant *Accountant, summarize Summarizer) *Manager {
	return &Manager{accountant: accountant, summarize: summarize}
}

// CurationResult reports what curation did, for telemetry/tests.
type CurationResult struct {
	Messages       []core.Message
	TotalTokens    int
	DigestsApplied int
	Collapsed      int
	Summarized     bool
	BudgetExhausted bool
}

// Curate computes total tokens; if within budget, returns history as-is;
// else applies trimming strategies in order (digest old tool_results,
// collapse old reasoning, summarize the oldest
// span), never dropping the system prompt, the most recent user prompt,
// or any unmatched tool_call. Idempotent: running it twice on an
// already-curated, within-budget history returns the same messages.
func (m *Manager) Curate(msgs []core.Message, b Budget) (CurationResult, error) {
	if b.KeepRecentTurns <= 0 {
		b.KeepRecentTurns = DefaultKeepRecentTurns
	}
	working := append([]core.Message(nil), msgs...)
	ledger := core.NewTokenLedger()
	total := m.accountant.CountHistory(working, ledger)
	budgetCeiling := b.MaxTokens - b.ReservedResponseTokens

	if total <= budgetCeiling {
		return CurationResult{Messages: working, TotalTokens: total}, nil
	}

	keepFromIdx := safeSplitIndex(working, b.KeepRecentTurns)
	pendingCalls := core.PendingToolCallIDs(working)

	result := CurationResult{}

	// Strategy 1: digest old tool_result payloads (older than the kept
	// tail) into a one-line summary (tool name, status, byte count).
	toolNames := map[string]string{}
	for _, msg := range working {
		for _, c := range msg.ToolCalls() {
			toolNames[c.ID] = c.Name
		}
	}
	for i := 0; i < keepFromIdx; i++ {
		msg := working[i]
		if msg.Role != core.RoleTool {
			continue
		}
		changed := false
		for pi, p := range msg.Parts {
			if p.Kind != core.PartToolResult || p.ToolResult == nil || p.Summarized {
				continue
			}
			name := toolNames[msg.ToolID]
			if name == "" {
				name = msg.ToolID
			}
			digest := fmt.Sprintf("[digest] tool=%s status=%s bytes=%d", name, p.ToolResult.Status, len(p.ToolResult.Output))
			msg.Parts[pi] = core.MessagePart{Kind: core.PartToolResult, Summarized: true, ToolResult: &core.ToolResult{
				Status: p.ToolResult.Status,
				Output: digest,
			}}
			changed = true
		}
		if changed {
			working[i] = msg
			result.DigestsApplied++
		}
	}
	total = m.accountant.CountHistory(working, ledger)
	if total <= budgetCeiling {
		result.Messages = working
		result.TotalTokens = total
		return result, nil
	}

	// Strategy 2: collapse consecutive old reasoning items into one
	// reasoning_summary entry.
	working, collapsed := collapseReasoning(working, keepFromIdx)
	result.Collapsed = collapsed
	total = m.accountant.CountHistory(working, ledger)
	if total <= budgetCeiling {
		result.Messages = working
		result.TotalTokens = total
		return result, nil
	}

	// Strategy 3: summarize the oldest contiguous span of non-system
	// messages that contains no unmatched tool_call.
	if m.summarize != nil {
		span, spanEnd, ok := oldestSafeSpan(working, pendingCalls)
		if ok && spanEnd > 0 {
			summary, err := m.summarize("", span)
			if err == nil {
				summaryMsg := core.Message{
					Role: core.RoleAssistant,
					Parts: []core.MessagePart{{
						Kind:       core.PartText,
						Text:       summary,
						Summarized: true,
					}},
				}
				newWorking := append([]core.Message{summaryMsg}, working[spanEnd:]...)
				// Keep any leading system messages in front of the summary.
				newWorking = frontLoadSystemMessages(working, spanEnd, summaryMsg)
				working = newWorking
				result.Summarized = true
			}
		}
	}
	total = m.accountant.CountHistory(working, ledger)
	result.Messages = working
	result.TotalTokens = total
	if total > budgetCeiling {
		result.BudgetExhausted = true
		return result, core.NewError(core.ErrBudgetExhausted, "curation could not fit request within budget")
	}
	return result, nil
}

func frontLoadSystemMessages(working []core.Message, spanEnd int, summaryMsg core.Message) []core.Message {
	var systemMsgs []core.Message
	for _, m := range working[:spanEnd] {
		if m.Role == core.RoleSystem {
			systemMsgs = append(systemMsgs, m)
		}
	}
	out := append([]core.Message{}, systemMsgs...)
	out = append(out, summaryMsg)
	out = append(out, working[spanEnd:]...)
	return out
}

// safeSplitIndex returns the index of the first message belonging to the
// last keepTurns turns, where a "turn" boundary is a user message with no
// outstanding tool calls pending at that point.
func safeSplitIndex(msgs []core.Message, keepTurns int) int {
	pending := map[string]bool{}
	var turnStarts []int
	for i, m := range msgs {
		if m.Role == core.RoleUser && len(pending) == 0 {
			turnStarts = append(turnStarts, i)
		}
		for _, p := range m.Parts {
			if p.Kind == core.PartToolCall && p.ToolCall != nil {
				pending[p.ToolCall.ID] = true
			}
		}
		if m.Role == core.RoleTool {
			delete(pending, m.ToolID)
		}
	}
	if len(turnStarts) <= keepTurns {
		return 0
	}
	return turnStarts[len(turnStarts)-keepTurns]
}

// collapseReasoning merges every reasoning MessagePart before idx into a
// single trailing reasoning_summary entry per message that had one,
// bounded to a short length.
func collapseReasoning(msgs []core.Message, idx int) ([]core.Message, int) {
	collapsed := 0
	for i := 0; i < idx && i < len(msgs); i++ {
		m := msgs[i]
		var kept []core.MessagePart
		var reasoningBuf string
		for _, p := range m.Parts {
			if p.Kind == core.PartReasoning && !p.Summarized {
				reasoningBuf += p.Reasoning
				continue
			}
			kept = append(kept, p)
		}
		if reasoningBuf != "" {
			if len(reasoningBuf) > 200 {
				reasoningBuf = reasoningBuf[:200] + "..."
			}
			kept = append(kept, core.MessagePart{Kind: core.PartReasoning, Reasoning: reasoningBuf, Summarized: true})
			m.Parts = kept
			msgs[i] = m
			collapsed++
		}
	}
	return msgs, collapsed
}

// oldestSafeSpan finds the oldest contiguous, non-system prefix of msgs
// that contains no tool_call id still present in pendingCalls, stopping
// before the most recent user message (which must never be summarized).
func oldestSafeSpan(msgs []core.Message, pendingCalls map[string]bool) ([]core.Message, int, bool) {
	lastUserIdx := -1
	for i, m := range msgs {
		if m.Role == core.RoleUser {
			lastUserIdx = i
		}
	}
	if lastUserIdx <= 0 {
		return nil, 0, false
	}
	start := 0
	for start < len(msgs) && msgs[start].Role == core.RoleSystem {
		start++
	}
	end := start
	for end < lastUserIdx {
		ok := true
		for _, p := range msgs[end].Parts {
			if p.Kind == core.PartToolCall && p.ToolCall != nil && pendingCalls[p.ToolCall.ID] {
				ok = false
			}
		}
		if !ok {
			break
		}
		end++
	}
	if end <= start {
		return nil, 0, false
	}
	return msgs[start:end], end, true
}
