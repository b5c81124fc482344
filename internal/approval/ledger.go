// Package approval implements ApprovalLedger and JustificationExtractor
//: a persisted record of approve/deny decisions, aggregated
// per tool, that learns to auto-approve non-critical tools with a strong
// approval history, plus reasoning extraction for the approval dialog.
package approval

import (
	"container/ring"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"vtcode/internal/core"
)

// Ledger records decisions and answers ShouldAutoApprove, backed by a
// markdown-backed store for cross-session persistence.
type Ledger struct {
	mu       sync.Mutex
	store    *Store
	patterns map[string]*core.ApprovalPattern
}

// NewLedger loads patterns from store (if any exist on disk already).
func NewLedger(store *Store) (*Ledger, error) {
	patterns, err := store.Load()
	if err != nil {
		return nil, err
	}
	l := &Ledger{store: store, patterns: patterns}
	return l, nil
}

// Record appends decision to the ledger, updates the aggregate pattern for
// its tool, and persists the aggregate (source of truth on reload).
func (l *Ledger) Record(d core.Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.patterns[d.Tool]
	if !ok {
		p = &core.ApprovalPattern{Tool: d.Tool}
		l.patterns[d.Tool] = p
	}
	switch d.Kind {
	case core.DecisionApprovedOnce, core.DecisionApprovedSession, core.DecisionApprovedAlways:
		p.ApproveCount++
	case core.DecisionDenied:
		p.DenyCount++
	}
	p.LastDecision = d
	p.LastReason = d.Reason

	return l.store.Save(l.patterns)
}

// PatternFor returns the current aggregate for tool, or a zero-value
// pattern if no decisions have been recorded yet.
func (l *Ledger) PatternFor(tool string) core.ApprovalPattern {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.patterns[tool]; ok {
		return *p
	}
	return core.ApprovalPattern{Tool: tool}
}

// ShouldAutoApprove implements the ledger's auto-approval rule.
func (l *Ledger) ShouldAutoApprove(tool string, risk core.RiskLevel) bool {
	return l.PatternFor(tool).ShouldAutoApprove(risk)
}

// DigestArgs computes a stable digest of tool call arguments for
// Decision.ArgsDigest.
func DigestArgs(args []byte) string {
	sum := sha256.Sum256(args)
	return hex.EncodeToString(sum[:])[:16]
}

// ----- JustificationExtractor -----

// ReasonedDecision pairs a Decision with the agent's stated reasoning at
// the time, the unit stored in the decision tracker ring buffer.
type ReasonedDecision struct {
	Decision  core.Decision
	Reasoning string
}

// DecisionTracker is a bounded ring buffer of recent decisions with
// reasoning. The pipeline keeps one tracker for the whole session and
// does not reset it between turns.
type DecisionTracker struct {
	mu  sync.Mutex
	buf *ring.Ring
	n   int
}

// NewDecisionTracker returns a tracker retaining the last capacity
// decisions.
func NewDecisionTracker(capacity int) *DecisionTracker {
	if capacity <= 0 {
		capacity = 5
	}
	return &DecisionTracker{buf: ring.New(capacity)}
}

// Push records rd as the most recent decision.
func (t *DecisionTracker) Push(rd ReasonedDecision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Value = rd
	t.buf = t.buf.Next()
	if t.n < t.buf.Len() {
		t.n++
	}
}

// Recent returns up to n most-recently-pushed entries, newest first.
func (t *DecisionTracker) Recent(n int) []ReasonedDecision {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ReasonedDecision
	r := t.buf
	total := t.buf.Len()
	for i := 0; i < total && len(out) < n; i++ {
		r = r.Prev()
		if r.Value != nil {
			out = append(out, r.Value.(ReasonedDecision))
		}
	}
	return out
}

var staticFallbacks = map[string]string{
	"run_command": "Execute system operation",
	"write_file":  "Write or create a file in the workspace",
	"edit_file":   "Modify an existing file in the workspace",
}

// Extract returns the most relevant Justification for a pending tool
// call: the latest decision whose tool matches; else a combination of
// the last N<=5 reasonings; else a static per-tool fallback.
func Extract(tracker *DecisionTracker, ledger *Ledger, tool string, risk core.RiskLevel) core.Justification {
	recent := tracker.Recent(5)
	for _, rd := range recent {
		if rd.Decision.Tool == tool {
			pattern := ledger.PatternFor(tool)
			return core.Justification{
				Tool:            tool,
				Reason:          rd.Reasoning,
				RiskLevel:       risk,
				ApprovalHistory: &pattern,
			}
		}
	}

	if len(recent) > 0 {
		combined := ""
		for i, rd := range recent {
			if rd.Reasoning == "" {
				continue
			}
			if i > 0 {
				combined += " "
			}
			combined += rd.Reasoning
		}
		if combined != "" {
			pattern := ledger.PatternFor(tool)
			return core.Justification{Tool: tool, Reason: combined, RiskLevel: risk, ApprovalHistory: &pattern}
		}
	}

	reason, ok := staticFallbacks[tool]
	if !ok {
		reason = fmt.Sprintf("Execute tool %q", tool)
	}
	pattern := ledger.PatternFor(tool)
	return core.Justification{Tool: tool, Reason: reason, RiskLevel: risk, ApprovalHistory: &pattern}
}

// ----- markdown-backed store -----

// Store persists the pattern map to a markdown table, atomic write
// (temp+rename).
type Store struct {
	path string
}

// NewStore returns a Store writing to path (typically
// <workspace>/.vtcode/approval_patterns.md).
func NewStore(path string) *Store { return &Store{path: path} }

type markdownRow struct {
	Tool         string    `json:"tool"`
	ApproveCount int       `json:"approve_count"`
	DenyCount    int       `json:"deny_count"`
	LastDecision string    `json:"last_decision"`
	LastReason   string    `json:"last_reason"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toRows(patterns map[string]*core.ApprovalPattern) []markdownRow {
	rows := make([]markdownRow, 0, len(patterns))
	for tool, p := range patterns {
		rows = append(rows, markdownRow{
			Tool:         tool,
			ApproveCount: p.ApproveCount,
			DenyCount:    p.DenyCount,
			LastDecision: string(p.LastDecision.Kind),
			LastReason:   p.LastReason,
			UpdatedAt:    p.LastDecision.Timestamp,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Tool < rows[j].Tool })
	return rows
}

