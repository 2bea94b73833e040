package agent

import (
	"context"
	"iter"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

type base struct {
	name        string
	description string
	subAgents   []Agent
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.description }
func (b *base) SubAgents() []Agent  { return b.subAgents }

// SequentialAgent runs its sub-agents once, in order.
type SequentialAgent struct {
	base
}

// NewSequentialAgent creates a SequentialAgent.
func NewSequentialAgent(name, description string, subAgents ...Agent) *SequentialAgent {
	return &SequentialAgent{base{name: name, description: description, subAgents: subAgents}}
}

func (a *SequentialAgent) Run(ctx context.Context, ictx *InvocationContext) iter.Seq2[*models.Event, error] {
	return func(yield func(*models.Event, error) bool) {
		for _, sub := range a.subAgents {
			for ev, err := range sub.Run(ctx, ictx) {
				if !yield(ev, err) || err != nil {
					return
				}
			}
		}
	}
}

// LoopAgent runs its sub-agents in order, repeatedly, until one of them
// escalates or MaxIterations passes complete. Zero means no limit.
type LoopAgent struct {
	base
	maxIterations int
}

// NewLoopAgent creates a LoopAgent.
func NewLoopAgent(name, description string, maxIterations int, subAgents ...Agent) *LoopAgent {
	return &LoopAgent{
		base:          base{name: name, description: description, subAgents: subAgents},
		maxIterations: maxIterations,
	}
}

// MaxIterations returns the iteration cap.
func (a *LoopAgent) MaxIterations() int { return a.maxIterations }

func (a *LoopAgent) Run(ctx context.Context, ictx *InvocationContext) iter.Seq2[*models.Event, error] {
	return func(yield func(*models.Event, error) bool) {
		for i := 0; a.maxIterations <= 0 || i < a.maxIterations; i++ {
			for _, sub := range a.subAgents {
				for ev, err := range sub.Run(ctx, ictx) {
					if !yield(ev, err) || err != nil {
						return
					}
					if ev.Actions != nil && ev.Actions.Escalate {
						return
					}
				}
			}
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
		}
	}
}

// FuncAgent runs custom code. Fn returns at most one event; nil yields nothing.
type FuncAgent struct {
	base
	fn func(ctx context.Context, ictx *InvocationContext) (*models.Event, error)
}

// NewFuncAgent creates a FuncAgent.
func NewFuncAgent(name, description string, fn func(ctx context.Context, ictx *InvocationContext) (*models.Event, error)) *FuncAgent {
	return &FuncAgent{base: base{name: name, description: description}, fn: fn}
}

func (a *FuncAgent) Run(ctx context.Context, ictx *InvocationContext) iter.Seq2[*models.Event, error] {
	return func(yield func(*models.Event, error) bool) {
		ev, err := a.fn(ctx, ictx)
		if err != nil {
			yield(nil, err)
			return
		}
		if ev != nil {
			yield(ev, nil)
		}
	}
}
