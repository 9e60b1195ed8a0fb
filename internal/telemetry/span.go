// Package telemetry replaces the decorator-based tracing / `with span:` idiom
// of the original source with an explicit scoped-acquisition Span type. A Span
// is always safe to call — it is a real OpenTelemetry span when ENABLE_TRACING
// is set, and a no-op otherwise.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an otel.Tracer (or nil, for the disabled case).
type Tracer struct {
	tracer  trace.Tracer
	enabled bool
}

// NewTracer builds a Tracer for the given component name. When enabled is
// false, every Span it produces is a no-op.
func NewTracer(component string, enabled bool) *Tracer {
	if !enabled {
		return &Tracer{enabled: false}
	}
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)
	return &Tracer{tracer: provider.Tracer(component), enabled: true}
}

// Span is a scoped-acquisition handle: start it with Start, call
// SetAttribute as needed, and End it (typically via defer) when the scope exits.
type Span struct {
	span    trace.Span
	enabled bool
}

// Start opens a new span named `name` as a child of ctx's span, if tracing is enabled.
func (t *Tracer) Start(ctx context.Context, name string) (context.Context, *Span) {
	if !t.enabled {
		return ctx, &Span{enabled: false}
	}
	ctx, sp := t.tracer.Start(ctx, name)
	return ctx, &Span{span: sp, enabled: true}
}

// SetAttribute records a key/value pair on the span; a no-op when tracing is disabled.
func (s *Span) SetAttribute(key string, value any) {
	if !s.enabled {
		return
	}
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, "unsupported-attribute-type"))
	}
}

// RecordError attaches an error to the span; a no-op when tracing is disabled.
func (s *Span) RecordError(err error) {
	if !s.enabled || err == nil {
		return
	}
	s.span.RecordError(err)
}

// End closes the span; a no-op when tracing is disabled.
func (s *Span) End() {
	if !s.enabled {
		return
	}
	s.span.End()
}
