package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"vtcode/internal/approval"
	"vtcode/internal/core"
	"vtcode/internal/policy"
	"vtcode/internal/workspace"
)

// ApprovalRequester is the UI boundary's approval sink: given a
// Justification, blocks until the user resolves it.
type ApprovalRequester interface {
	Ask(ctx context.Context, j core.Justification) (core.DecisionKind, string, error)
}

// Pipeline executes one ToolCall through a fixed seven-stage path:
// resolve -> schema validate -> policy gate -> approval gate -> execute
// -> post-process -> emit.
type Pipeline struct {
	registry  *Registry
	rules     policy.Rules
	guard     *workspace.Guard
	ledger    *approval.Ledger
	tracker   *approval.DecisionTracker
	approver  ApprovalRequester
	emitter   EventEmitter

	defaultTimeout time.Duration
	maxOutputBytes int

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

// EventEmitter is the narrow slice of core.Emitter the pipeline needs,
// kept as an interface so tests can substitute a recording stub.
type EventEmitter interface {
	ItemStarted(turnID string, item core.Item)
	ItemCompleted(turnID string, item core.Item)
}

// PipelineConfig bundles Pipeline construction parameters.
type PipelineConfig struct {
	Registry       *Registry
	Rules          policy.Rules
	Guard          *workspace.Guard
	Ledger         *approval.Ledger
	Tracker        *approval.DecisionTracker
	Approver       ApprovalRequester
	Emitter        EventEmitter
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// NewPipeline constructs a Pipeline from cfg, applying documented
// defaults (30s per-tool timeout, 10MB output cap) where unset.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = 10 * 1024 * 1024
	}
	return &Pipeline{
		registry:       cfg.Registry,
		rules:          cfg.Rules,
		guard:          cfg.Guard,
		ledger:         cfg.Ledger,
		tracker:        cfg.Tracker,
		approver:       cfg.Approver,
		emitter:        cfg.Emitter,
		defaultTimeout: cfg.DefaultTimeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		schemas:        make(map[string]*jsonschema.Schema),
	}
}

func (p *Pipeline) compiledSchema(desc core.ToolDescriptor) (*jsonschema.Schema, error) {
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()
	if s, ok := p.schemas[desc.Name]; ok {
		return s, nil
	}
	raw, err := json.Marshal(desc.Schema)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	resource := "schema-" + desc.Name + ".json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, err
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, err
	}
	p.schemas[desc.Name] = schema
	return schema, nil
}

// Execute runs the full pipeline for call, returning the ToolResult. It
// has no error return: recoverable conditions (schema invalid, policy
// denied, tool not found, etc.) become a Failure ToolResult, a timeout a
// Timeout ToolResult, and context cancellation a Cancelled ToolResult.
func (p *Pipeline) Execute(ctx context.Context, turnID string, call core.ToolCall, modifiedFiles *[]string) core.ToolResult {
	item := core.Item{ID: call.ID, Kind: core.ItemMcpToolCall, ToolName: call.Name}
	p.emitter.ItemStarted(turnID, item)
	result := p.execute(ctx, call, modifiedFiles)
	p.emitter.ItemCompleted(turnID, item)
	return result
}

func (p *Pipeline) execute(ctx context.Context, call core.ToolCall, modifiedFiles *[]string) core.ToolResult {
	// 1. Resolve.
	tool, ok := p.registry.Get(call.Name)
	if !ok {
		return core.ToolResult{Status: core.StatusFailure, Kind: core.FailureToolNotFound, Message: "tool not found: " + call.Name}
	}
	desc := tool.Descriptor()

	// 2. Schema validate.
	if len(call.Arguments) == 0 {
		call.Arguments = []byte("{}")
	}
	var argsDoc any
	if err := json.Unmarshal(call.Arguments, &argsDoc); err != nil {
		return core.ToolResult{Status: core.StatusFailure, Kind: core.FailureSchemaInvalid, Message: "arguments not valid JSON: " + err.Error()}
	}
	schema, err := p.compiledSchema(desc)
	if err == nil {
		if err := schema.Validate(argsDoc); err != nil {
			return core.ToolResult{Status: core.StatusFailure, Kind: core.FailureSchemaInvalid, Message: err.Error()}
		}
	}
	args := Args{}
	if m, ok := argsDoc.(map[string]any); ok {
		args = Args(m)
	}

	// 3. Policy gate.
	risk := desc.Risk
	if desc.SideEffects.ExecutesProc {
		argv := GetStringSlice(args, "argv")
		decision := p.rules.Evaluate(argv)
		if !decision.Allowed {
			return core.ToolResult{Status: core.StatusFailure, Kind: core.FailurePolicyDenied, Message: "policy denied: " + decision.Rule}
		}
		if hasDestructiveFlag(argv) {
			risk = core.RiskCritical
		}
	}
	if path, hasPath := args["path"].(string); hasPath && p.guard != nil {
		if _, err := p.guard.Resolve(path); err != nil {
			return core.ToolResult{Status: core.StatusFailure, Kind: core.FailureWorkspaceBounds, Message: err.Error()}
		}
	}

	// 4. Approval gate.
	if needsApproval(risk, p.ledger, desc.Name) {
		justification := approval.Extract(p.tracker, p.ledger, desc.Name, risk)
		if prev, ok := tool.(Previewer); ok {
			if preview, err := prev.Preview(ctx, args); err == nil {
				justification.ExpectedOutcome = preview.Summary
			}
		}
		kind, reason, err := p.approver.Ask(ctx, justification)
		if err != nil {
			return core.ToolResult{Status: core.StatusFailure, Kind: core.FailureDenied, Message: err.Error()}
		}
		decision := core.Decision{
			Tool:       desc.Name,
			ArgsDigest: approval.DigestArgs(call.Arguments),
			Risk:       risk,
			Kind:       kind,
			Timestamp:  time.Now(),
			Reason:     reason,
		}
		_ = p.ledger.Record(decision)
		p.tracker.Push(approval.ReasonedDecision{Decision: decision, Reasoning: reason})
		if kind == core.DecisionDenied {
			return core.ToolResult{Status: core.StatusFailure, Kind: core.FailureDenied, Message: "user denied approval"}
		}
	}

	// 5. Execute under timeout.
	timeout := p.defaultTimeout
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var recordedFiles []string
	tc := &ToolContext{
		WorkspaceRoot: workspaceRootOf(p.guard),
		RecordModifiedFile: func(path string) {
			recordedFiles = append(recordedFiles, path)
		},
	}
	result, err := tool.Execute(cctx, args, tc)
	if cctx.Err() == context.DeadlineExceeded {
		return core.ToolResult{Status: core.StatusTimeout, ElapsedMS: time.Since(start).Milliseconds()}
	}
	if ctx.Err() == context.Canceled {
		return core.ToolResult{Status: core.StatusCancelled}
	}
	if err != nil {
		return core.ToolResult{Status: core.StatusFailure, Kind: core.FailureIO, Message: err.Error()}
	}

	// 6. Post-process: cap output, record modified files.
	if len(result.Output) > p.maxOutputBytes {
		result.Output = result.Output[:p.maxOutputBytes] + "\n...[truncated]"
	}
	result.Output = stripANSI(result.Output)
	if len(recordedFiles) > 0 {
		result.ModifiedFiles = append(result.ModifiedFiles, recordedFiles...)
		if modifiedFiles != nil {
			*modifiedFiles = append(*modifiedFiles, recordedFiles...)
		}
	} else if len(result.ModifiedFiles) > 0 && modifiedFiles != nil {
		*modifiedFiles = append(*modifiedFiles, result.ModifiedFiles...)
	}
	return result
}

func workspaceRootOf(g *workspace.Guard) string {
	if g == nil {
		return "."
	}
	root, err := g.Resolve(".")
	if err != nil {
		return "."
	}
	return root
}

func needsApproval(risk core.RiskLevel, ledger *approval.Ledger, tool string) bool {
	if risk == core.RiskNone || risk == core.RiskLow {
		return false
	}
	if risk != core.RiskCritical && ledger.PatternFor(tool).LastDecision.Kind == core.DecisionApprovedAlways {
		return false
	}
	if ledger.ShouldAutoApprove(tool, risk) {
		return false
	}
	return true
}

func hasDestructiveFlag(argv []string) bool {
	joined := strings.Join(argv, " ")
	return strings.Contains(joined, "--force") || strings.Contains(joined, "--hard")
}

// stripANSI removes terminal escape sequences from text bound for the
// model. A small state machine, not a regex, to avoid catastrophic
// backtracking on malformed input.
func stripANSI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && !isANSITerminator(s[j]) {
				j++
			}
			if j < len(s) {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isANSITerminator(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
