package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	mw "github.com/xraph/datastruct/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func TestTracing_SpanAttributes(t *testing.T) {
	sr, tracer := setupTestTracer()
	c := newTestCall()

	if err := mw.TracingWithTracer(tracer)(context.Background(), c, func(_ context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "datastruct.remote.set.purge" {
		t.Errorf("span name = %q", s.Name())
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}

	want := map[attribute.Key]string{
		"datastruct.op":     "set.purge",
		"datastruct.cache":  "default",
		"datastruct.target": c.Target.String(),
	}
	for _, kv := range s.Attributes() {
		if v, ok := want[kv.Key]; ok {
			if kv.Value.AsString() != v {
				t.Errorf("%s = %q, want %q", kv.Key, kv.Value.AsString(), v)
			}
			delete(want, kv.Key)
		}
	}
	if len(want) != 0 {
		t.Errorf("missing attributes: %v", want)
	}
}

func TestTracing_Error_SetsErrorStatus(t *testing.T) {
	sr, tracer := setupTestTracer()

	err := mw.TracingWithTracer(tracer)(context.Background(), newTestCall(), func(_ context.Context) error {
		return errors.New("purge failed")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	s := sr.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "purge failed" {
		t.Errorf("status = %+v", s.Status())
	}
	if len(s.Events()) == 0 {
		t.Error("expected recorded error event")
	}
}

func TestTracing_PropagatesContext(t *testing.T) {
	_, tracer := setupTestTracer()

	_ = mw.TracingWithTracer(tracer)(context.Background(), newTestCall(), func(ctx context.Context) error {
		if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
			t.Error("expected a valid span in context")
		}
		return nil
	})
}

func TestTracing_DefaultNoopSafe(t *testing.T) {
	if err := mw.Tracing()(context.Background(), newTestCall(), func(_ context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
}
