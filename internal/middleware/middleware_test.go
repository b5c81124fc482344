package middleware

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vtcode/internal/core"
)

type recordingMiddleware struct {
	BaseMiddleware
	order *[]string
}

func (m recordingMiddleware) BeforeTurn(ctx context.Context, state *TurnState) error {
	*m.order = append(*m.order, "before:"+m.Name())
	return nil
}
func (m recordingMiddleware) AfterTurn(ctx context.Context, state *TurnState, outcome core.TurnOutcome) error {
	*m.order = append(*m.order, "after:"+m.Name())
	return nil
}

func TestChainOrdering(t *testing.T) {
	var order []string
	a := recordingMiddleware{BaseMiddleware: NewBaseMiddleware("a"), order: &order}
	b := recordingMiddleware{BaseMiddleware: NewBaseMiddleware("b"), order: &order}
	chain := NewChain(a, b)

	state := &TurnState{}
	if err := chain.BeforeTurn(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if err := chain.AfterTurn(context.Background(), state, core.TurnOutcome{Kind: core.OutcomeCompleted}); err != nil {
		t.Fatal(err)
	}

	want := []string{"before:a", "before:b", "after:b", "after:a"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestBasePromptMiddlewareInjectsWorkspaceRoot(t *testing.T) {
	m := NewBasePromptMiddleware("/workspace")
	state := &TurnState{}
	if err := m.BeforeTurn(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(state.SystemPrompt, "/workspace") {
		t.Fatalf("expected system prompt to mention workspace root, got %q", state.SystemPrompt)
	}
}

func TestPersonaMiddlewarePrefersWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "persona.md"), []byte("custom persona text"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewPersonaMiddleware(dir)
	state := &TurnState{}
	if err := m.BeforeTurn(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(state.SystemPrompt, "custom persona text") {
		t.Fatalf("expected custom persona content, got %q", state.SystemPrompt)
	}
}

func TestPersonaMiddlewareFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	m := NewPersonaMiddleware(dir)
	state := &TurnState{}
	if err := m.BeforeTurn(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(state.SystemPrompt, "careful, concise coding agent") {
		t.Fatalf("expected default persona content, got %q", state.SystemPrompt)
	}
}

