package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/backoff"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/middleware"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// Executor runs individual steps through the middleware chain with
// timeout enforcement and retry-with-backoff. A step is attempted
// 1+RetryCount times; the last failure is returned wrapped in a
// StepExecutionError carrying recoverability hints.
type Executor struct {
	registry *Registry
	chain    middleware.Middleware
	strategy backoff.Strategy
	logger   *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMiddleware sets the middleware chain applied around each attempt.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.chain = middleware.Chain(mws...) }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.strategy = s }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor returns an Executor resolving agents from registry.
// Without options it applies the default middleware chain
// (recover, logging, timeout) and the default backoff strategy.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		strategy: backoff.DefaultStrategy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.chain == nil {
		e.chain = middleware.Chain(
			middleware.Recover(e.logger),
			middleware.Logging(e.logger),
			middleware.Timeout(),
		)
	}
	return e
}

// Execute runs one step to completion. It retries transient failures up
// to the step's RetryCount with backoff between attempts. The returned
// map is the agent's output; on failure the error is a
// *bidflow.StepExecutionError wrapping the last attempt's error.
func (e *Executor) Execute(ctx context.Context, execID id.ExecutionID, tenantID string, step *workflow.Step, input map[string]any) (map[string]any, error) {
	ag, err := e.registry.Resolve(step.AgentType)
	if err != nil {
		return nil, &bidflow.StepExecutionError{
			Step:        step.ID,
			Message:     fmt.Sprintf("no agent registered for type %q", step.AgentType),
			Recoverable: false,
			Suggestions: []string{"register an agent for type " + step.AgentType},
			Err:         err,
		}
	}

	attempts := 1 + step.RetryCount
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			// Retries are 1-indexed for the strategy: the wait before
			// attempt 2 is the first retry delay.
			delay := e.strategy.Delay(attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, e.failure(step, ctx.Err(), attempt-1)
			}
		}

		inv := &middleware.Invocation{
			ExecutionID: execID,
			TenantID:    tenantID,
			Step:        step,
			Attempt:     attempt,
		}

		var output map[string]any
		err := e.chain(ctx, inv, func(ctx context.Context) error {
			out, execErr := ag.Execute(ctx, step, input)
			if execErr != nil {
				if errors.Is(execErr, context.DeadlineExceeded) {
					return fmt.Errorf("%w after %s: %v", ErrTimeout, step.Timeout(), execErr)
				}
				return execErr
			}
			output = out
			return nil
		})
		if err == nil {
			return output, nil
		}
		lastErr = err

		// Stop early when the caller's context is gone; retrying is
		// pointless and would only delay shutdown.
		if ctx.Err() != nil {
			break
		}
	}
	return nil, e.failure(step, lastErr, attempts)
}

// failure wraps the final attempt error with classification the
// orchestrator records on the execution's ErrorInfo.
func (e *Executor) failure(step *workflow.Step, err error, attempts int) *bidflow.StepExecutionError {
	se := &bidflow.StepExecutionError{
		Step:    step.ID,
		Message: fmt.Sprintf("step %s failed after %d attempt(s): %v", step.ID, attempts, err),
		Err:     err,
	}
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		se.Recoverable = true
		se.Suggestions = []string{
			"increase the step timeout",
			"recover from the latest checkpoint and retry",
		}
	case errors.Is(err, context.Canceled):
		se.Recoverable = true
		se.Suggestions = []string{"restart the workflow once the system is back up"}
	default:
		se.Recoverable = true
		se.Suggestions = []string{"recover from the latest checkpoint after addressing the failure"}
	}
	return se
}
