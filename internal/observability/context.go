// Package observability carries per-request operation ids shared by logs, spans,
// metrics and audit records.
package observability

import (
	"context"

	"github.com/google/uuid"
)

type opIDKey struct{}

// WithOpID generates a new operation ID and stores it in the context.
// The HTTP router calls this once per inbound request.
func WithOpID(ctx context.Context) context.Context {
	return context.WithValue(ctx, opIDKey{}, uuid.NewString())
}

// WithGivenOpID stores a caller supplied op id, falling back to a fresh one when the
// value is not a UUID.
func WithGivenOpID(ctx context.Context, id string) context.Context {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return WithOpID(ctx)
	}
	return context.WithValue(ctx, opIDKey{}, parsed.String())
}

// OpID retrieves the operation ID from context
// Returns empty string if no op_id was set
func OpID(ctx context.Context) string {
	if id, ok := ctx.Value(opIDKey{}).(string); ok {
		return id
	}
	return ""
}
