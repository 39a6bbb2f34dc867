package middleware

import "context"

// Timeout returns middleware that enforces the step's configured timeout.
// Steps without a timeout run with the caller's context unchanged.
func Timeout() Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		d := inv.Step.Timeout()
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
