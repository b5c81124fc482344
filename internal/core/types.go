// Package core defines the data model shared by every subsystem of the
// agent turn loop: messages, tool calls/results, approval decisions, and
// the session-scoped state that owns them.
package core

import "time"

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind tags the variant of a MessagePart union.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
	PartReasoning  PartKind = "reasoning"
)

// MessagePart is one element of a Message's content. Exactly the fields
// matching Kind are populated; the rest are zero.
type MessagePart struct {
	Kind       PartKind    `json:"kind"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Reasoning  string      `json:"reasoning,omitempty"`
	// Summarized marks a part produced by ContextManager curation rather
	// than the model or a tool. Curation skips re-summarizing such parts.
	Summarized bool `json:"summarized,omitempty"`
}

// Message is one turn in the conversation. Messages are immutable once
// committed to a ConversationHistory.
type Message struct {
	Seq     uint64        `json:"seq"`
	Role    Role          `json:"role"`
	Parts   []MessagePart `json:"parts"`
	ToolID  string        `json:"tool_id,omitempty"` // set on RoleTool messages
	Created time.Time     `json:"created"`
}

// Text concatenates every text part of the message, for callers that only
// care about the plain-text rendering (logging, UI fallback).
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolCalls returns every tool_call part carried by the message.
func (m Message) ToolCalls() []ToolCall {
	var out []ToolCall
	for _, p := range m.Parts {
		if p.Kind == PartToolCall && p.ToolCall != nil {
			out = append(out, *p.ToolCall)
		}
	}
	return out
}

// RiskLevel ranks how dangerous a tool invocation is judged to be.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank gives a total order over RiskLevel for comparisons such as
// "risk != critical".
func (r RiskLevel) rank() int {
	switch r {
	case RiskNone:
		return 0
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether r is at least as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool { return r.rank() >= other.rank() }

// SideEffects flags the side-effect surface of a tool, used by policy and
// approval gating to decide which checks apply.
type SideEffects struct {
	ReadsFS        bool `json:"reads_fs"`
	WritesFS       bool `json:"writes_fs"`
	ExecutesProc   bool `json:"executes_process"`
	Network        bool `json:"network"`
}

// ToolDescriptor is the immutable, registry-init-time description of a
// tool: its identity, its input contract, and its risk/side-effect profile.
type ToolDescriptor struct {
	Name        string
	Description string
	// Schema is a JSON-Schema-like document (map form, suitable for
	// json.Marshal) describing call.arguments.
	Schema      map[string]any
	Risk        RiskLevel
	SideEffects SideEffects
}

// ToolCall is a model-requested tool invocation. Arguments is raw JSON so
// pipeline stage 2 can validate it against the descriptor's schema before
// unmarshalling into anything concrete.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"tool_name"`
	Arguments []byte          `json:"arguments"`
}

// ResultStatus tags the ToolResult union.
type ResultStatus string

const (
	StatusSuccess   ResultStatus = "success"
	StatusFailure   ResultStatus = "failure"
	StatusTimeout   ResultStatus = "timeout"
	StatusCancelled ResultStatus = "cancelled"
	StatusProgress  ResultStatus = "progress"
)

// FailureKind classifies a Failure ToolResult for the error taxonomy (§7).
type FailureKind string

const (
	FailureSchemaInvalid    FailureKind = "schema_invalid"
	FailurePolicyDenied     FailureKind = "policy_denied"
	FailureWorkspaceBounds  FailureKind = "workspace_bounds"
	FailureToolNotFound     FailureKind = "tool_not_found"
	FailureDenied           FailureKind = "denied"
	FailureIO               FailureKind = "io"
	FailureParse            FailureKind = "parse"
	FailureChildExitNonzero FailureKind = "child_exit_nonzero"
	FailureNetwork          FailureKind = "network"
)

// ToolResult is the tagged union ToolCall resolves to. Exactly one of the
// per-status payloads is meaningful, selected by Status.
type ToolResult struct {
	Status ResultStatus `json:"status"`

	// Success
	Output        string         `json:"output,omitempty"`
	ModifiedFiles []string       `json:"modified_files,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	// Failure
	Kind    FailureKind `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`

	// Timeout
	ElapsedMS int64 `json:"elapsed_ms,omitempty"`

	// Progress
	Partial string `json:"partial,omitempty"`
}

// DecisionKind is the outcome of a policy/approval evaluation.
type DecisionKind string

const (
	DecisionApprovedOnce    DecisionKind = "approved_once"
	DecisionApprovedSession DecisionKind = "approved_session"
	DecisionApprovedAlways  DecisionKind = "approved_always"
	DecisionDenied          DecisionKind = "denied"
)

// Decision is a record of one policy/approval outcome.
type Decision struct {
	Tool       string       `json:"tool"`
	ArgsDigest string       `json:"args_digest"`
	Risk       RiskLevel    `json:"risk"`
	Kind       DecisionKind `json:"decision"`
	Timestamp  time.Time    `json:"timestamp"`
	Reason     string       `json:"reason,omitempty"`
}

// ApprovalPattern aggregates decision history for one tool.
type ApprovalPattern struct {
	Tool         string    `json:"tool"`
	ApproveCount int       `json:"approve_count"`
	DenyCount    int       `json:"deny_count"`
	LastDecision Decision  `json:"last_decision"`
	LastReason   string    `json:"last_reason,omitempty"`
}

// Rate returns approve/(approve+deny), or 0 if no decisions recorded.
func (p ApprovalPattern) Rate() float64 {
	total := p.ApproveCount + p.DenyCount
	if total == 0 {
		return 0
	}
	return float64(p.ApproveCount) / float64(total)
}

// ShouldAutoApprove implements the ledger's auto-approval rule:
// approve_count >= 3 && rate > 0.80 && risk not in {critical}.
func (p ApprovalPattern) ShouldAutoApprove(risk RiskLevel) bool {
	if risk == RiskCritical {
		return false
	}
	return p.ApproveCount >= 3 && p.Rate() > 0.80
}

// TurnOutcomeKind tags the terminal result of one TurnScheduler run.
type TurnOutcomeKind string

const (
	OutcomeCompleted       TurnOutcomeKind = "completed"
	OutcomeFailed          TurnOutcomeKind = "failed"
	OutcomeCancelled       TurnOutcomeKind = "cancelled"
	OutcomeBudgetExhausted TurnOutcomeKind = "budget_exhausted"
)

// TurnOutcome is the return value of TurnScheduler.RunTurn.
type TurnOutcome struct {
	Kind      TurnOutcomeKind
	Assistant *Message // set when Kind == OutcomeCompleted
	Reason    string   // set when Kind == OutcomeFailed
}

// Justification is handed to the approval UI for a pending tool call.
type Justification struct {
	Tool             string
	Reason           string
	ExpectedOutcome  string
	RiskLevel        RiskLevel
	ApprovalHistory  *ApprovalPattern
}
