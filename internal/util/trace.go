package util

import (
	"context"

	"github.com/google/uuid"
)

// contextKey avoids collisions with other packages' context keys.
type contextKey string

const traceIDKey contextKey = "traceID"

// NewTraceID generates a fresh trace ID for one operator command. The
// command tracker records it on that command's pending entry; it is not
// attached to events or log lines.
func NewTraceID() string {
	return uuid.NewString()
}

// ContextWithTraceID injects traceID into ctx.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext extracts a trace ID injected by
// ContextWithTraceID, if any.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDKey).(string)
	return traceID, ok
}
