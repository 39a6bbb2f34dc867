package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs step start and completion with
// duration and outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		start := time.Now()
		logger.DebugContext(ctx, "step starting",
			"execution_id", inv.ExecutionID,
			"step_id", inv.Step.ID,
			"agent_type", inv.Step.AgentType,
			"attempt", inv.Attempt,
		)

		err := next(ctx)
		dur := time.Since(start)

		if err != nil {
			logger.WarnContext(ctx, "step failed",
				"execution_id", inv.ExecutionID,
				"step_id", inv.Step.ID,
				"attempt", inv.Attempt,
				"duration", dur,
				"error", err,
			)
			return err
		}
		logger.InfoContext(ctx, "step completed",
			"execution_id", inv.ExecutionID,
			"step_id", inv.Step.ID,
			"duration", dur,
		)
		return nil
	}
}
