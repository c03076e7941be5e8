package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/reelmill/conduct/job"
)

// meterName is the instrumentation scope name for conduct metrics.
const meterName = "github.com/reelmill/conduct"

// Metrics returns middleware that records per-attempt dispatch metrics
// using the global OTel MeterProvider. If no MeterProvider is
// configured, noop instruments are used and this middleware is a
// pass-through.
//
// Instruments:
//   - conduct.dispatch.duration (Float64Histogram): submit time in
//     seconds, with attributes: content_type, provider, status
//   - conduct.dispatch.attempts (Int64Counter): total dispatch attempts,
//     with attributes: content_type, provider, status
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instruments are created once at construction time. OTel
	// instruments are safe for concurrent use; on error the API returns
	// noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"conduct.dispatch.duration",
		metric.WithDescription("Duration of provider submit attempts in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	attempts, aErr := meter.Int64Counter(
		"conduct.dispatch.attempts",
		metric.WithDescription("Total number of provider dispatch attempts"),
		metric.WithUnit("{attempt}"),
	)
	_ = aErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("content_type", string(j.Spec.Type)),
			attribute.String("provider", j.Provider),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)

		return err
	}
}
