// Package middleware provides composable middleware for step invocation.
// Middleware wraps agent calls synchronously and can modify execution
// (recover from panics, enforce the step deadline, log, add tracing, etc.).
package middleware

import (
	"context"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// Invocation describes a single step attempt flowing through the chain.
type Invocation struct {
	ExecutionID id.ExecutionID
	TenantID    string
	Step        *workflow.Step
	Attempt     int
}

// Handler is the terminal function that invokes the agent.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the invocation being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, inv *Invocation, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, inv, prev)
			}
		}
		return h(ctx)
	}
}
