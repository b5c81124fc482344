// Package middleware provides an optional BeforeTurn/OnEvent/AfterTurn
// hook chain around TurnScheduler, operating on vtcode's system-prompt
// string and core.Event/core.TurnOutcome types.
package middleware

import (
	"context"

	"vtcode/internal/core"
)

// TurnState is the mutable, per-turn scratch state middleware can observe
// and modify before a turn is submitted to the model.
type TurnState struct {
	SystemPrompt  string
	WorkspaceRoot string
	Metadata      map[string]any
}

// Middleware can modify turn state before processing and observe events
// and outcomes as a turn runs.
type Middleware interface {
	Name() string
	BeforeTurn(ctx context.Context, state *TurnState) error
	OnEvent(ctx context.Context, state *TurnState, e core.Event) error
	AfterTurn(ctx context.Context, state *TurnState, outcome core.TurnOutcome) error
}

// BaseMiddleware supplies no-op implementations; concrete middleware
// embeds it and overrides only the hooks it needs.
type BaseMiddleware struct {
	name string
}

// NewBaseMiddleware returns a BaseMiddleware identified by name.
func NewBaseMiddleware(name string) BaseMiddleware { return BaseMiddleware{name: name} }

func (m BaseMiddleware) Name() string { return m.name }
func (m BaseMiddleware) BeforeTurn(ctx context.Context, state *TurnState) error { return nil }
func (m BaseMiddleware) OnEvent(ctx context.Context, state *TurnState, e core.Event) error {
	return nil
}
func (m BaseMiddleware) AfterTurn(ctx context.Context, state *TurnState, outcome core.TurnOutcome) error {
	return nil
}

// Chain runs a fixed ordered set of Middleware: BeforeTurn/OnEvent in
// registration order, AfterTurn in reverse.
type Chain struct {
	middlewares []Middleware
}

// NewChain returns a Chain over ms.
func NewChain(ms ...Middleware) *Chain { return &Chain{middlewares: ms} }

// Add appends m to the chain.
func (c *Chain) Add(m Middleware) { c.middlewares = append(c.middlewares, m) }

func (c *Chain) BeforeTurn(ctx context.Context, state *TurnState) error {
	for _, m := range c.middlewares {
		if err := m.BeforeTurn(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) OnEvent(ctx context.Context, state *TurnState, e core.Event) error {
	for _, m := range c.middlewares {
		if err := m.OnEvent(ctx, state, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) AfterTurn(ctx context.Context, state *TurnState, outcome core.TurnOutcome) error {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		if err := c.middlewares[i].AfterTurn(ctx, state, outcome); err != nil {
			return err
		}
	}
	return nil
}

// Sink wraps a core.Sink so a Chain can be driven as an event observer
// sitting between the Emitter and the real sink, without the scheduler
// needing to know middleware exists.
type Sink struct {
	chain *Chain
	state *TurnState
	next  core.Sink
}

// NewSink returns a core.Sink that feeds every event through chain.OnEvent
// before forwarding to next.
func NewSink(chain *Chain, state *TurnState, next core.Sink) *Sink {
	return &Sink{chain: chain, state: state, next: next}
}

func (s *Sink) Emit(e core.Event) {
	_ = s.chain.OnEvent(context.Background(), s.state, e)
	s.next.Emit(e)
}
