package context

import (
	"strings"
	"testing"

	"vtcode/internal/core"
)

func textMsg(role core.Role, text string) core.Message {
	return core.Message{Role: role, Parts: []core.MessagePart{{Kind: core.PartText, Text: text}}}
}

func TestCurateWithinBudgetIsNoop(t *testing.T) {
	a := NewAccountant("gpt-4o")
	m := NewManager(a, nil)
	msgs := []core.Message{textMsg(core.RoleSystem, "sys"), textMsg(core.RoleUser, "hi")}
	res, err := m.Curate(msgs, Budget{MaxTokens: 100000, ReservedResponseTokens: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Messages) != len(msgs) {
		t.Fatalf("expected no-op curation, got %d messages", len(res.Messages))
	}
}

func TestCurateIdempotentWhenWithinBudget(t *testing.T) {
	a := NewAccountant("gpt-4o")
	m := NewManager(a, nil)
	msgs := []core.Message{textMsg(core.RoleSystem, "sys"), textMsg(core.RoleUser, "hi")}
	b := Budget{MaxTokens: 100000, ReservedResponseTokens: 1000}
	r1, _ := m.Curate(msgs, b)
	r2, _ := m.Curate(r1.Messages, b)
	if len(r1.Messages) != len(r2.Messages) {
		t.Fatalf("expected idempotent curation")
	}
}

func TestCurateDigestsOldToolResults(t *testing.T) {
	a := NewAccountant("gpt-4o")
	m := NewManager(a, func(_ string, span []core.Message) (string, error) { return "summary", nil })

	big := strings.Repeat("x", 200000)
	var msgs []core.Message
	msgs = append(msgs, textMsg(core.RoleSystem, "sys"))
	for i := 0; i < 10; i++ {
		msgs = append(msgs, textMsg(core.RoleUser, "do something"))
		call := core.ToolCall{ID: "t" + string(rune('a'+i)), Name: "read_file"}
		msgs = append(msgs, core.Message{Role: core.RoleAssistant, Parts: []core.MessagePart{{Kind: core.PartToolCall, ToolCall: &call}}})
		msgs = append(msgs, core.Message{Role: core.RoleTool, ToolID: call.ID, Parts: []core.MessagePart{{Kind: core.PartToolResult, ToolResult: &core.ToolResult{Status: core.StatusSuccess, Output: big}}}})
	}
	msgs = append(msgs, textMsg(core.RoleUser, "final question"))

	res, err := m.Curate(msgs, Budget{MaxTokens: 128000, ReservedResponseTokens: 8000, KeepRecentTurns: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalTokens > 120000 {
		t.Fatalf("expected curated total under budget ceiling, got %d", res.TotalTokens)
	}
	// System prompt must survive untouched.
	if res.Messages[0].Role != core.RoleSystem || res.Messages[0].Text() != "sys" {
		t.Fatalf("expected system prompt preserved first")
	}
}

func TestCurateNeverDropsUnmatchedToolCall(t *testing.T) {
	a := NewAccountant("gpt-4o")
	m := NewManager(a, func(_ string, span []core.Message) (string, error) { return "summary", nil })

	call := core.ToolCall{ID: "unmatched", Name: "read_file"}
	msgs := []core.Message{
		textMsg(core.RoleSystem, "sys"),
		textMsg(core.RoleUser, strings.Repeat("pad", 50000)),
		{Role: core.RoleAssistant, Parts: []core.MessagePart{{Kind: core.PartToolCall, ToolCall: &call}}},
	}
	res, _ := m.Curate(msgs, Budget{MaxTokens: 1000, ReservedResponseTokens: 100, KeepRecentTurns: 1})
	found := false
	for _, msg := range res.Messages {
		for _, p := range msg.Parts {
			if p.Kind == core.PartToolCall && p.ToolCall != nil && p.ToolCall.ID == "unmatched" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected unmatched tool_call to survive curation")
	}
}
