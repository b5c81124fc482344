package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"vtcode/internal/approval"
	"vtcode/internal/core"
	"vtcode/internal/policy"
	"vtcode/internal/workspace"
)

type stubApprover struct {
	kind   core.DecisionKind
	reason string
}

func (s stubApprover) Ask(ctx context.Context, j core.Justification) (core.DecisionKind, string, error) {
	return s.kind, s.reason, nil
}

type nopEmitter struct{}

func (nopEmitter) ItemStarted(turnID string, item core.Item)   {}
func (nopEmitter) ItemCompleted(turnID string, item core.Item) {}

func newTestPipeline(t *testing.T, approver ApprovalRequester) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	reg := DefaultRegistry(dir)
	guard, err := workspace.NewGuard(workspace.Bounds{Root: dir})
	if err != nil {
		t.Fatal(err)
	}
	ledger, err := approval.NewLedger(approval.NewStore(filepath.Join(dir, ".vtcode", "approval_patterns.md")))
	if err != nil {
		t.Fatal(err)
	}
	p := NewPipeline(PipelineConfig{
		Registry: reg,
		Rules:    policy.DefaultRules(),
		Guard:    guard,
		Ledger:   ledger,
		Tracker:  approval.NewDecisionTracker(5),
		Approver: approver,
		Emitter:  nopEmitter{},
	})
	return p, dir
}

func TestPipelineToolNotFound(t *testing.T) {
	p, _ := newTestPipeline(t, stubApprover{kind: core.DecisionApprovedOnce})
	res := p.Execute(context.Background(), "t1", core.ToolCall{ID: "1", Name: "nonexistent", Arguments: []byte("{}")}, nil)
	if res.Status != core.StatusFailure || res.Kind != core.FailureToolNotFound {
		t.Fatalf("expected tool_not_found, got %+v", res)
	}
}

func TestPipelineSchemaInvalid(t *testing.T) {
	p, _ := newTestPipeline(t, stubApprover{kind: core.DecisionApprovedOnce})
	// read_file requires "path"; omit it.
	res := p.Execute(context.Background(), "t1", core.ToolCall{ID: "1", Name: "read_file", Arguments: []byte("{}")}, nil)
	if res.Status != core.StatusFailure || res.Kind != core.FailureSchemaInvalid {
		t.Fatalf("expected schema_invalid, got %+v", res)
	}
}

func TestPipelineLowRiskToolSkipsApproval(t *testing.T) {
	p, dir := newTestPipeline(t, stubApprover{kind: core.DecisionDenied}) // would fail the turn if consulted
	args, _ := json.Marshal(map[string]string{"path": "a.txt"})
	_ = dir
	res := p.Execute(context.Background(), "t1", core.ToolCall{ID: "1", Name: "read_file", Arguments: args}, nil)
	// File doesn't exist, but the point is we got past approval to an IO
	// failure rather than a denial.
	if res.Kind == core.FailureDenied {
		t.Fatalf("low risk tool should not require approval, got denied")
	}
}

func TestPipelineHighRiskDeniedByUser(t *testing.T) {
	p, _ := newTestPipeline(t, stubApprover{kind: core.DecisionDenied, reason: "too risky"})
	args, _ := json.Marshal(map[string]string{"path": "a.txt", "content": "hello"})
	res := p.Execute(context.Background(), "t1", core.ToolCall{ID: "1", Name: "write_file", Arguments: args}, nil)
	if res.Status != core.StatusFailure || res.Kind != core.FailureDenied {
		t.Fatalf("expected denied, got %+v", res)
	}
}

func TestPipelineHighRiskApprovedExecutes(t *testing.T) {
	p, dir := newTestPipeline(t, stubApprover{kind: core.DecisionApprovedOnce})
	args, _ := json.Marshal(map[string]string{"path": "a.txt", "content": "hello"})
	res := p.Execute(context.Background(), "t1", core.ToolCall{ID: "1", Name: "write_file", Arguments: args}, nil)
	if res.Status != core.StatusSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(data) != "hello" {
		t.Fatalf("expected file written, got data=%q err=%v", data, err)
	}
}

func TestPipelinePolicyDeniedCommand(t *testing.T) {
	p, _ := newTestPipeline(t, stubApprover{kind: core.DecisionApprovedOnce})
	args, _ := json.Marshal(map[string]any{"argv": []string{"rm", "-rf", "."}})
	res := p.Execute(context.Background(), "t1", core.ToolCall{ID: "1", Name: "run_command", Arguments: args}, nil)
	if res.Status != core.StatusFailure || res.Kind != core.FailurePolicyDenied {
		t.Fatalf("expected policy_denied, got %+v", res)
	}
}
