package approval

import (
	"path/filepath"
	"testing"
	"time"

	"vtcode/internal/core"
)

func TestLedgerAutoApproveScenario(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "approval_patterns.md"))
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatal(err)
	}

	approve := func() {
		if err := ledger.Record(core.Decision{Tool: "write_file", Risk: core.RiskMedium, Kind: core.DecisionApprovedOnce, Timestamp: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	deny := func() {
		if err := ledger.Record(core.Decision{Tool: "write_file", Risk: core.RiskMedium, Kind: core.DecisionDenied, Timestamp: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		approve()
	}
	// 4th call: approve_count=3, rate=1.0 -> should already auto-approve.
	if !ledger.ShouldAutoApprove("write_file", core.RiskMedium) {
		t.Fatalf("expected auto-approve after 3 clean approvals")
	}
	approve() // 4th approval recorded per spec scenario 3
	pattern := ledger.PatternFor("write_file")
	if pattern.ApproveCount != 4 {
		t.Fatalf("expected approve_count=4, got %d", pattern.ApproveCount)
	}

	deny()
	pattern = ledger.PatternFor("write_file")
	if pattern.ApproveCount != 4 || pattern.DenyCount != 1 {
		t.Fatalf("unexpected pattern after deny: %+v", pattern)
	}
	if pattern.Rate() != 0.8 {
		t.Fatalf("expected rate=0.8, got %v", pattern.Rate())
	}
	if ledger.ShouldAutoApprove("write_file", core.RiskMedium) {
		t.Fatalf("rate exactly 0.80 must not auto-approve (requires strictly > 0.80)")
	}
}

func TestLedgerPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "approval_patterns.md")
	store := NewStore(path)
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatal(err)
	}
	if err := ledger.Record(core.Decision{Tool: "run_command", Risk: core.RiskHigh, Kind: core.DecisionApprovedOnce, Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewLedger(NewStore(path))
	if err != nil {
		t.Fatal(err)
	}
	p1 := ledger.PatternFor("run_command")
	p2 := reloaded.PatternFor("run_command")
	if p1.ApproveCount != p2.ApproveCount || p1.DenyCount != p2.DenyCount {
		t.Fatalf("expected identical counters after reload, got %+v vs %+v", p1, p2)
	}
}

func TestJustificationExtractorFallback(t *testing.T) {
	dir := t.TempDir()
	ledger, err := NewLedger(NewStore(filepath.Join(dir, "p.md")))
	if err != nil {
		t.Fatal(err)
	}
	tracker := NewDecisionTracker(5)
	j := Extract(tracker, ledger, "run_command", core.RiskHigh)
	if j.Reason != "Execute system operation" {
		t.Fatalf("expected static fallback, got %q", j.Reason)
	}
}

func TestJustificationExtractorLatestMatchingDecision(t *testing.T) {
	dir := t.TempDir()
	ledger, err := NewLedger(NewStore(filepath.Join(dir, "p.md")))
	if err != nil {
		t.Fatal(err)
	}
	tracker := NewDecisionTracker(5)
	tracker.Push(ReasonedDecision{Decision: core.Decision{Tool: "write_file"}, Reasoning: "updating config per user request"})
	j := Extract(tracker, ledger, "write_file", core.RiskMedium)
	if j.Reason != "updating config per user request" {
		t.Fatalf("expected latest matching reasoning, got %q", j.Reason)
	}
}
