package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reelmill/conduct/job"
)

// tracerName is the instrumentation scope name for conduct tracing.
const tracerName = "github.com/reelmill/conduct"

// Tracing returns middleware that wraps each dispatch attempt in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// noop tracer is used and this middleware is a pass-through.
//
// Span attributes: conduct.job.id, conduct.content_type,
// conduct.provider, conduct.retry_count. On error, the span status is
// set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "conduct.job.dispatch",
			trace.WithAttributes(
				attribute.String("conduct.job.id", j.ID.String()),
				attribute.String("conduct.content_type", string(j.Spec.Type)),
				attribute.String("conduct.provider", j.Provider),
				attribute.Int("conduct.retry_count", j.RetryCount),
			),
			trace.WithSpanKind(trace.SpanKindClient),
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
