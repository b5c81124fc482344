package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vtcode/internal/approval"
	"vtcode/internal/config"
	vtctx "vtcode/internal/context"
	"vtcode/internal/core"
	"vtcode/internal/llm"
	"vtcode/internal/llm/anthropic"
	"vtcode/internal/llm/openai"
	"vtcode/internal/middleware"
	"vtcode/internal/policy"
	"vtcode/internal/scheduler"
	"vtcode/internal/session"
	"vtcode/internal/tools"
	"vtcode/internal/workspace"

	"vtcode/cmd/vtcode/ui"
)

// engine bundles one session's worth of wiring: the scheduler and every
// collaborator it borrows for a turn, plus the persisted-state side
// (session.Store/TrajectoryLog/Cache) that outlives a single turn.
type engine struct {
	cfg           config.Config
	workspaceRoot string

	scheduler *scheduler.Scheduler
	chain     *middleware.Chain
	turnState *middleware.TurnState

	sessionStore *session.Store
	trajectory   *session.TrajectoryLog
	cache        *session.Cache

	approver *autoApprover

	history *core.ConversationHistory
	sink    core.Sink
}

// autoApprover wraps ui.Approver so the "/approve-all" chat command can
// flip every remaining tool call in the session to auto-approved without
// threading a flag through the pipeline/scheduler.
type autoApprover struct {
	inner tools.ApprovalRequester
	allOn bool
}

func newAutoApprover(inner tools.ApprovalRequester) *autoApprover {
	return &autoApprover{inner: inner}
}

func (a *autoApprover) Ask(ctx context.Context, j core.Justification) (core.DecisionKind, string, error) {
	if a.allOn {
		return core.DecisionApprovedAlways, "auto-approved for session (/approve-all)", nil
	}
	return a.inner.Ask(ctx, j)
}

func (a *autoApprover) enableAll() { a.allOn = true }

// newEngine wires one vtcode session's worth of collaborators from cfg,
// rooted at workspaceRoot. There is no skill/memory/plan wiring: those
// concepts have no home in this agent's session model. The LLM adapter is
// chosen from internal/llm's three implementations based on cfg/env.
func newEngine(cfg config.Config, workspaceRoot string, modelOverride string) (*engine, error) {
	reg := tools.DefaultRegistry(workspaceRoot)

	guard, err := workspace.NewGuard(workspace.Bounds{
		Root:                    workspaceRoot,
		AdditionalWritableRoots: cfg.Workspace.AdditionalWritableRoots,
	})
	if err != nil {
		return nil, fmt.Errorf("create workspace guard: %w", err)
	}

	ledger, err := approval.NewLedger(approval.NewStore(filepath.Join(workspaceRoot, ".vtcode", "approval_patterns.md")))
	if err != nil {
		return nil, fmt.Errorf("create approval ledger: %w", err)
	}

	sessionStore, err := session.NewStore(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	trajectory, err := session.NewTrajectoryLog(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("create trajectory log: %w", err)
	}
	cache, err := session.NewCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("create bounded cache: %w", err)
	}

	client, model := resolveLLM(cfg, modelOverride)

	rules := policy.DefaultRules()
	rules.AllowList = append(rules.AllowList, cfg.Policy.AllowList...)
	rules.AllowGlob = append(rules.AllowGlob, cfg.Policy.AllowGlob...)
	rules.AllowRegex = append(rules.AllowRegex, cfg.Policy.AllowRegex...)
	rules.DenyList = append(rules.DenyList, cfg.Policy.DenyList...)
	rules.DenyGlob = append(rules.DenyGlob, cfg.Policy.DenyGlob...)
	rules.DenyRegex = append(rules.DenyRegex, cfg.Policy.DenyRegex...)

	accountant := vtctx.NewAccountant(model)
	ctxMgr := vtctx.NewManager(accountant, nil)

	uiSink := &terminalSink{}
	fanout := core.NewMultiSink(uiSink, trajectory)

	chain := middleware.NewChain(
		middleware.NewPersonaMiddleware(workspaceRoot),
		middleware.NewBasePromptMiddleware(workspaceRoot),
	)
	turnState := &middleware.TurnState{WorkspaceRoot: workspaceRoot, Metadata: map[string]any{}}

	sink := middleware.NewSink(chain, turnState, fanout)
	emitter := core.NewEmitter(sink, "thread-1")

	approver := newAutoApprover(ui.NewApprover())

	pipeline := tools.NewPipeline(tools.PipelineConfig{
		Registry:       reg,
		Rules:          rules,
		Guard:          guard,
		Ledger:         ledger,
		Tracker:        approval.NewDecisionTracker(5),
		Approver:       approver,
		Emitter:        emitter,
		DefaultTimeout: time.Duration(cfg.Limits.PerToolTimeoutSecs) * time.Second,
	})

	sched := scheduler.New(scheduler.Config{
		LLM:                    client,
		Model:                  model,
		Pipeline:               pipeline,
		Registry:               reg,
		ContextManager:         ctxMgr,
		Accountant:             accountant,
		Emitter:                emitter,
		Budget:                 vtctx.Budget{MaxTokens: cfg.Context.MaxTokens, ReservedResponseTokens: cfg.Context.ReservedResponseTokens, KeepRecentTurns: vtctx.DefaultKeepRecentTurns},
		MaxRounds:              cfg.Limits.TurnRoundsMax,
		MaxConsecutiveFailures: cfg.Limits.ConsecutiveFailuresMax,
	})

	return &engine{
		cfg:           cfg,
		workspaceRoot: workspaceRoot,
		scheduler:     sched,
		chain:         chain,
		turnState:     turnState,
		sessionStore:  sessionStore,
		trajectory:    trajectory,
		cache:         cache,
		approver:      approver,
		history:       core.NewConversationHistory(),
		sink:          sink,
	}, nil
}

// resolveLLM picks a provider adapter from cfg/env, falling back to the
// deterministic MockClient when no API key is configured.
func resolveLLM(cfg config.Config, modelOverride string) (llm.Client, string) {
	model := cfg.Agent.Model
	if modelOverride != "" {
		model = modelOverride
	}

	switch cfg.Agent.Provider {
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			if model == "" {
				model = "claude-sonnet-4-5-20250929"
			}
			return anthropic.New(key, model), model
		}
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			if model == "" {
				model = "gpt-4o-mini"
			}
			return openai.New(key, os.Getenv("OPENAI_BASE_URL"), model), model
		}
	}

	if model == "" {
		model = "mock"
	}
	return &llm.MockClient{}, model
}

// resolveWorkspaceRoot: the agent operates inside a workspace/
// subdirectory of the current working directory, created on demand.
func resolveWorkspaceRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(wd); err == nil {
		wd = real
	}
	root := filepath.Join(wd, "workspace")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	return root, nil
}
