// Package tracing adapts OpenTelemetry to a small StartSpan surface,
// grounded on the teacher's pkg/tracing/otel.go (OTelTracer wrapping
// oteltrace.Tracer behind a start/finish closure pair).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer. A zero-value Tracer (nil
// inner) is a safe no-op, so callers that never configure tracing
// never need a nil check.
type Tracer struct {
	tracer oteltrace.Tracer
}

// New builds a Tracer for the named component. When enabled is false,
// spans are produced via the global no-op provider (no exporter, no
// sampling cost) — tracing_enabled=false must not change behavior,
// only whether spans go anywhere.
func New(enabled bool, component string) *Tracer {
	var provider oteltrace.TracerProvider
	if enabled {
		provider = sdktrace.NewTracerProvider()
		otel.SetTracerProvider(provider)
	} else {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(component)}
}

// StartSpan starts a span named name with the given string attributes
// and returns the derived context plus a finish closure. The finish
// closure records err (if non-nil) on the span before ending it.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	if t == nil || t.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, name, oteltrace.WithAttributes(convertAttrs(attrs)...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

func convertAttrs(attrs map[string]string) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		if k == "" {
			continue
		}
		out = append(out, attribute.String(k, v))
	}
	return out
}
