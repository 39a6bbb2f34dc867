package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/warlockedward/AI-Bid-Assistant-sub001"

// Tracing returns middleware that wraps each step attempt in an
// OpenTelemetry span using the global tracer provider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is like Tracing but uses the given tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "bidflow.step "+inv.Step.ID,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("bidflow.execution_id", inv.ExecutionID.String()),
				attribute.String("bidflow.tenant_id", inv.TenantID),
				attribute.String("bidflow.step_id", inv.Step.ID),
				attribute.String("bidflow.agent_type", inv.Step.AgentType),
				attribute.Int("bidflow.attempt", inv.Attempt),
			),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
