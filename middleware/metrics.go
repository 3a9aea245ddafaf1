package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for datastruct metrics.
const meterName = "github.com/xraph/datastruct"

// Metrics returns middleware that records per-call metrics using the global
// OTel MeterProvider.
//
// Instruments:
//   - datastruct.remote.duration (Float64Histogram): execution time in
//     seconds, with attributes: op, cache, status ("ok" or "error")
//   - datastruct.remote.calls (Int64Counter): total calls, same attributes
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"datastruct.remote.duration",
		metric.WithDescription("Duration of remote call execution in seconds"),
		metric.WithUnit("s"),
	)
	calls, _ := meter.Int64Counter(
		"datastruct.remote.calls",
		metric.WithDescription("Total number of remote calls executed"),
		metric.WithUnit("{call}"),
	)

	return func(ctx context.Context, c *Call, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("op", c.Op),
			attribute.String("cache", c.Cache),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		calls.Add(ctx, 1, attrs)

		return err
	}
}
