package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type handleKey struct{}

// Handle wraps tracer and shutdown
type Handle struct {
	Tracer   trace.Tracer
	Shutdown func(context.Context) error
}

// WithHandle stores the OTel Handle in context.
func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// From retrieves the OTel Handle from context.
// Returns nil if OTel is not enabled.
func From(ctx context.Context) *Handle {
	h, _ := ctx.Value(handleKey{}).(*Handle)
	return h
}

// tracer returns the handle's tracer, or a no-op tracer when tracing is off.
func (h *Handle) tracer() trace.Tracer {
	if h == nil || h.Tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return h.Tracer
}

// StartSpan starts a span on the tracer stored in ctx; without one it returns a
// non-recording span so callers never need a nil check.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return From(ctx).tracer().Start(ctx, name, opts...)
}
