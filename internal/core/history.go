package core

import "fmt"

// ConversationHistory is the ordered, monotonically-sequenced message log
// for one session. Invariants:
//   - every tool_call id is eventually matched by exactly one tool_result
//     before the next assistant-text-only message is admitted;
//   - system messages appear only at the front;
//   - summarized segments replace, never interleave, original ranges.
type ConversationHistory struct {
	messages []Message
	nextSeq  uint64
}

// NewConversationHistory returns an empty history.
func NewConversationHistory() *ConversationHistory {
	return &ConversationHistory{}
}

// Append commits msg to history, stamping it with the next sequence
// number. Returns the stamped message.
func (h *ConversationHistory) Append(msg Message) Message {
	msg.Seq = h.nextSeq
	h.nextSeq++
	h.messages = append(h.messages, msg)
	return msg
}

// Messages returns the current message slice. Callers must not mutate it;
// use Append/Replace to change history.
func (h *ConversationHistory) Messages() []Message {
	return h.messages
}

// Len reports the number of messages currently retained.
func (h *ConversationHistory) Len() int { return len(h.messages) }

// Replace swaps the retained message slice for a trimmed/summarized view
// without disturbing sequence numbers on the messages that survive (they
// keep their original Seq). Curation does not call it: Curate returns its
// result as a separate slice and leaves the history as it is.
func (h *ConversationHistory) Replace(messages []Message) {
	h.messages = messages
}

// PendingToolCallIDs returns the set of tool_call ids in msgs that have not
// yet been matched by a tool_result, scanning in order. Curation uses it to
// keep unmatched tool_calls out of the summarized span.
func PendingToolCallIDs(msgs []Message) map[string]bool {
	pending := make(map[string]bool)
	for _, m := range msgs {
		for _, p := range m.Parts {
			if p.Kind == PartToolCall && p.ToolCall != nil {
				pending[p.ToolCall.ID] = true
			}
		}
		if m.Role == RoleTool && m.ToolID != "" {
			delete(pending, m.ToolID)
		}
	}
	return pending
}

// ValidateInvariants checks that system messages appear only at the front
// of a candidate message slice, returning a descriptive error naming the
// first violation found, or nil. Tool_call/tool_result pairing is not
// checked here.
func ValidateInvariants(msgs []Message) error {
	seenNonSystem := false
	for i, m := range msgs {
		if m.Role == RoleSystem && seenNonSystem {
			return fmt.Errorf("system message at index %d follows a non-system message", i)
		}
		if m.Role != RoleSystem {
			seenNonSystem = true
		}
	}
	return nil
}

// TokenLedger maps message index to its approximate/exact token count and
// tracks running totals.
type TokenLedger struct {
	PerMessage  map[int]int
	Cumulative  int
	HighWaterMark int
}

// NewTokenLedger returns an empty ledger.
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{PerMessage: make(map[int]int)}
}

// Record stores the token count for message index idx and updates the
// running totals.
func (l *TokenLedger) Record(idx, tokens int) {
	if prev, ok := l.PerMessage[idx]; ok {
		l.Cumulative -= prev
	}
	l.PerMessage[idx] = tokens
	l.Cumulative += tokens
	if l.Cumulative > l.HighWaterMark {
		l.HighWaterMark = l.Cumulative
	}
}

// Forget removes the recorded count for idx (used when a message is
// trimmed or replaced by a digest/summary during curation).
func (l *TokenLedger) Forget(idx int) {
	if prev, ok := l.PerMessage[idx]; ok {
		l.Cumulative -= prev
		delete(l.PerMessage, idx)
	}
}

// WithinBudget reports whether the ledger's cumulative total fits within
// maxTokens minus reservedResponseTokens.
func (l *TokenLedger) WithinBudget(maxTokens, reservedResponseTokens int) bool {
	return l.Cumulative <= maxTokens-reservedResponseTokens
}
