// Package agent defines the contract for step workers and the executor
// that drives them with timeouts, retries, and middleware.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// ErrTimeout indicates a step attempt exceeded its configured timeout.
var ErrTimeout = errors.New("agent: step timed out")

// Agent executes a single workflow step. Implementations receive the step
// definition and the accumulated state data relevant to the step, and
// return the step's output to be merged back into execution state.
//
// Execute must honor ctx cancellation; the executor applies the step's
// timeout through the context deadline.
type Agent interface {
	Execute(ctx context.Context, step *workflow.Step, input map[string]any) (map[string]any, error)
}

// Func adapts a plain function to the Agent interface.
type Func func(ctx context.Context, step *workflow.Step, input map[string]any) (map[string]any, error)

func (f Func) Execute(ctx context.Context, step *workflow.Step, input map[string]any) (map[string]any, error) {
	return f(ctx, step, input)
}

// Registry maps agent types to Agent implementations. A Registry is safe
// for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register binds an agent type to an implementation, replacing any
// previous binding.
func (r *Registry) Register(agentType string, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agentType] = a
}

// Resolve returns the agent for the given type, or ErrNoAgent.
func (r *Registry) Resolve(agentType string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bidflow.ErrNoAgent, agentType)
	}
	return a, nil
}

// Types returns the registered agent types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for t := range r.agents {
		out = append(out, t)
	}
	return out
}
