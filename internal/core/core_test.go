package core

import "testing"

func TestApprovalPatternAutoApprove(t *testing.T) {
	cases := []struct {
		name    string
		p       ApprovalPattern
		risk    RiskLevel
		wantYes bool
	}{
		{"below count", ApprovalPattern{ApproveCount: 2, DenyCount: 0}, RiskLow, false},
		{"exact threshold rate", ApprovalPattern{ApproveCount: 4, DenyCount: 1}, RiskLow, false}, // rate=0.8, not >0.8
		{"above threshold", ApprovalPattern{ApproveCount: 9, DenyCount: 1}, RiskMedium, true},
		{"critical never", ApprovalPattern{ApproveCount: 100, DenyCount: 0}, RiskCritical, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.p.ShouldAutoApprove(c.risk); got != c.wantYes {
				t.Fatalf("ShouldAutoApprove() = %v, want %v (rate=%v)", got, c.wantYes, c.p.Rate())
			}
		})
	}
}

func TestApprovalPatternFlipsAtExactFirstQualifyingCall(t *testing.T) {
	// Each iteration evaluates call i against the ledger state *before* that
	// call, then records an approval. Calls 1-3 see approve_count 0-2 and
	// must prompt; call 4 is the first to see approve_count=3 (rate 1.0) and
	// must auto-approve.
	p := ApprovalPattern{}
	firstAuto := 0
	for i := 1; i <= 5; i++ {
		if p.ShouldAutoApprove(RiskLow) && firstAuto == 0 {
			firstAuto = i
		}
		p.ApproveCount++
	}
	if firstAuto != 4 {
		t.Fatalf("expected auto-approve to flip at call 4, flipped at call %d", firstAuto)
	}
}

func TestValidateInvariantsSystemMustBeFront(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser},
		{Role: RoleSystem},
	}
	if err := ValidateInvariants(msgs); err == nil {
		t.Fatalf("expected error for system message after non-system")
	}
}

func TestPendingToolCallIDs(t *testing.T) {
	msgs := []Message{
		{Role: RoleAssistant, Parts: []MessagePart{{Kind: PartToolCall, ToolCall: &ToolCall{ID: "a"}}}},
		{Role: RoleTool, ToolID: "a"},
		{Role: RoleAssistant, Parts: []MessagePart{{Kind: PartToolCall, ToolCall: &ToolCall{ID: "b"}}}},
	}
	pending := PendingToolCallIDs(msgs)
	if pending["a"] {
		t.Fatalf("id a should be matched")
	}
	if !pending["b"] {
		t.Fatalf("id b should still be pending")
	}
}

func TestTokenLedgerWithinBudget(t *testing.T) {
	l := NewTokenLedger()
	l.Record(0, 100)
	l.Record(1, 50)
	if !l.WithinBudget(200, 10) {
		t.Fatalf("expected within budget")
	}
	l.Record(2, 1000)
	if l.WithinBudget(200, 10) {
		t.Fatalf("expected budget exceeded")
	}
	l.Forget(2)
	if !l.WithinBudget(200, 10) {
		t.Fatalf("expected within budget after forget")
	}
}
