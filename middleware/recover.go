package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that converts panics in downstream handlers
// into errors, so a misbehaving agent cannot take down the run loop.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, inv *Invocation, next Handler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger.ErrorContext(ctx, "step panicked",
					"execution_id", inv.ExecutionID,
					"step_id", inv.Step.ID,
					"panic", fmt.Sprint(r),
					"stack", string(stack),
				)
				err = fmt.Errorf("step %s panicked: %v", inv.Step.ID, r)
			}
		}()
		return next(ctx)
	}
}
