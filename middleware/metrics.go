package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics returns middleware that records step duration and outcome
// counters using the global meter provider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(tracerName))
}

// MetricsWithMeter is like Metrics but uses the given meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	duration, _ := meter.Float64Histogram("bidflow.step.duration",
		metric.WithDescription("Step attempt duration in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter("bidflow.step.attempts",
		metric.WithDescription("Total step attempts by outcome"),
	)

	return func(ctx context.Context, inv *Invocation, next Handler) error {
		start := time.Now()
		err := next(ctx)

		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("step_id", inv.Step.ID),
			attribute.String("agent_type", inv.Step.AgentType),
			attribute.String("outcome", outcome),
		)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		attempts.Add(ctx, 1, attrs)
		return err
	}
}
