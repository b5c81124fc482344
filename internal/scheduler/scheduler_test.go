package scheduler

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"vtcode/internal/approval"
	vtctx "vtcode/internal/context"
	"vtcode/internal/core"
	"vtcode/internal/llm"
	"vtcode/internal/policy"
	"vtcode/internal/tools"
	"vtcode/internal/workspace"
)

// scriptedStream replays a fixed Delta sequence, used to drive the
// scheduler deterministically without a real model.
type scriptedStream struct {
	deltas []llm.Delta
	i      int
}

func (s *scriptedStream) Recv(ctx context.Context) (llm.Delta, error) {
	if s.i >= len(s.deltas) {
		return llm.Delta{}, io.EOF
	}
	d := s.deltas[s.i]
	s.i++
	return d, nil
}
func (s *scriptedStream) Close() error { return nil }

// scriptedLLM returns one scriptedStream per call, in order; the last
// script repeats once exhausted.
type scriptedLLM struct {
	scripts [][]llm.Delta
	calls   int
}

func (m *scriptedLLM) StreamCompletion(ctx context.Context, req llm.Request) (llm.Stream, error) {
	idx := m.calls
	if idx >= len(m.scripts) {
		idx = len(m.scripts) - 1
	}
	m.calls++
	return &scriptedStream{deltas: m.scripts[idx]}, nil
}
func (m *scriptedLLM) ModelLimits(model string) llm.ModelLimits {
	return llm.ModelLimits{ContextWindow: 128000, MaxResponseTokens: 8000}
}

type autoApprover struct{}

func (autoApprover) Ask(ctx context.Context, j core.Justification) (core.DecisionKind, string, error) {
	return core.DecisionApprovedOnce, "test", nil
}

func newTestScheduler(t *testing.T, m *scriptedLLM) (*Scheduler, *core.SliceSink) {
	t.Helper()
	dir := t.TempDir()
	reg := tools.DefaultRegistry(dir)
	guard, err := workspace.NewGuard(workspace.Bounds{Root: dir})
	if err != nil {
		t.Fatal(err)
	}
	ledger, err := approval.NewLedger(approval.NewStore(filepath.Join(dir, ".vtcode", "approval_patterns.md")))
	if err != nil {
		t.Fatal(err)
	}
	pipeline := tools.NewPipeline(tools.PipelineConfig{
		Registry: reg,
		Rules:    policy.DefaultRules(),
		Guard:    guard,
		Ledger:   ledger,
		Tracker:  approval.NewDecisionTracker(5),
		Approver: autoApprover{},
		Emitter:  noopPipelineEmitter{},
	})
	accountant := vtctx.NewAccountant("gpt-4o-mini")
	ctxMgr := vtctx.NewManager(accountant, nil)
	sink := &core.SliceSink{}
	emitter := core.NewEmitter(sink, "thread-1")

	sched := New(Config{
		LLM:            m,
		Model:          "gpt-4o-mini",
		Pipeline:       pipeline,
		Registry:       reg,
		ContextManager: ctxMgr,
		Accountant:     accountant,
		Emitter:        emitter,
		Budget:         vtctx.Budget{MaxTokens: 128000, ReservedResponseTokens: 8000},
	})
	return sched, sink
}

type noopPipelineEmitter struct{}

func (noopPipelineEmitter) ItemStarted(turnID string, item core.Item)   {}
func (noopPipelineEmitter) ItemCompleted(turnID string, item core.Item) {}

func TestRunTurnCompletesWithoutToolCalls(t *testing.T) {
	m := &scriptedLLM{scripts: [][]llm.Delta{
		{
			{Kind: llm.DeltaText, Text: "hello "},
			{Kind: llm.DeltaText, Text: "world"},
			{Kind: llm.DeltaEnd, FinishReason: "stop"},
		},
	}}
	sched, sink := newTestScheduler(t, m)
	history := core.NewConversationHistory()
	history.Append(core.Message{Role: core.RoleUser, Parts: []core.MessagePart{{Kind: core.PartText, Text: "hi"}}})

	outcome := sched.RunTurn(context.Background(), "turn-1", "you are a test agent", history)
	if outcome.Kind != core.OutcomeCompleted {
		t.Fatalf("expected completed, got %+v", outcome)
	}
	if outcome.Assistant == nil || outcome.Assistant.Text() != "hello world" {
		t.Fatalf("expected assistant text 'hello world', got %+v", outcome.Assistant)
	}

	sawTurnStarted, sawTurnCompleted := false, false
	for _, e := range sink.Events {
		if e.Type == core.EventTurnStarted {
			sawTurnStarted = true
		}
		if e.Type == core.EventTurnCompleted {
			sawTurnCompleted = true
		}
	}
	if !sawTurnStarted || !sawTurnCompleted {
		t.Fatalf("expected turn.started and turn.completed events, got %+v", sink.Events)
	}
}

func TestRunTurnExecutesToolCallThenCompletes(t *testing.T) {
	m := &scriptedLLM{scripts: [][]llm.Delta{
		{
			{Kind: llm.DeltaToolCallPart, ToolCallID: "call_1", ToolCallName: "read_file", ArgsFragment: `{"path":"missing.txt"}`},
			{Kind: llm.DeltaEnd, FinishReason: "tool_calls", ToolCalls: []llm.ToolCallReq{{ID: "call_1", Name: "read_file", Arguments: `{"path":"missing.txt"}`}}},
		},
		{
			{Kind: llm.DeltaText, Text: "done"},
			{Kind: llm.DeltaEnd, FinishReason: "stop"},
		},
	}}
	sched, _ := newTestScheduler(t, m)
	history := core.NewConversationHistory()
	history.Append(core.Message{Role: core.RoleUser, Parts: []core.MessagePart{{Kind: core.PartText, Text: "read the file"}}})

	outcome := sched.RunTurn(context.Background(), "turn-2", "", history)
	if outcome.Kind != core.OutcomeCompleted {
		t.Fatalf("expected completed, got %+v", outcome)
	}

	sawToolResult := false
	for _, msg := range history.Messages() {
		if msg.Role == core.RoleTool && msg.ToolID == "call_1" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Fatalf("expected a tool_result message for call_1")
	}
}

func TestRunTurnHaltsOnDuplicateToolCallID(t *testing.T) {
	m := &scriptedLLM{scripts: [][]llm.Delta{
		{
			{Kind: llm.DeltaEnd, FinishReason: "tool_calls", ToolCalls: []llm.ToolCallReq{
				{ID: "dup", Name: "read_file", Arguments: `{"path":"a"}`},
				{ID: "dup", Name: "read_file", Arguments: `{"path":"b"}`},
			}},
		},
	}}
	sched, _ := newTestScheduler(t, m)
	history := core.NewConversationHistory()
	history.Append(core.Message{Role: core.RoleUser, Parts: []core.MessagePart{{Kind: core.PartText, Text: "go"}}})

	outcome := sched.RunTurn(context.Background(), "turn-3", "", history)
	if outcome.Kind != core.OutcomeFailed {
		t.Fatalf("expected failed outcome on duplicate tool_call id, got %+v", outcome)
	}
}

func TestRunTurnHaltsAfterConsecutiveFailures(t *testing.T) {
	script := func(id string) []llm.Delta {
		return []llm.Delta{
			{Kind: llm.DeltaEnd, FinishReason: "tool_calls", ToolCalls: []llm.ToolCallReq{{ID: id, Name: "nonexistent_tool", Arguments: `{}`}}},
		}
	}
	m := &scriptedLLM{scripts: [][]llm.Delta{script("c1"), script("c2"), script("c3"), script("c4")}}
	sched, _ := newTestScheduler(t, m)
	history := core.NewConversationHistory()
	history.Append(core.Message{Role: core.RoleUser, Parts: []core.MessagePart{{Kind: core.PartText, Text: "go"}}})

	outcome := sched.RunTurn(context.Background(), "turn-4", "", history)
	if outcome.Kind != core.OutcomeFailed {
		t.Fatalf("expected failed outcome after consecutive tool failures, got %+v", outcome)
	}
}
