package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for datastruct tracing.
const tracerName = "github.com/xraph/datastruct"

// Tracing returns middleware that wraps remote call execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used.
//
// Span attributes: datastruct.op, datastruct.cache, datastruct.target.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		ctx, span := tracer.Start(ctx, "datastruct.remote."+c.Op,
			trace.WithAttributes(
				attribute.String("datastruct.op", c.Op),
				attribute.String("datastruct.cache", c.Cache),
				attribute.String("datastruct.target", c.Target.String()),
			),
			trace.WithSpanKind(trace.SpanKindServer),
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
