// Package context holds typed accessors for request-scoped values.
package context

import (
	"context"
)

type traceIDKey struct{}

// WithTraceID returns a context carrying the request's trace ID. Log records
// written with the context are stamped with it.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID stored by WithTraceID.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDKey{}).(string)

	return traceID, ok && traceID != ""
}
