package util

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTraceIDIsUnique(t *testing.T) {
	require.NotEqual(t, NewTraceID(), NewTraceID())
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := TraceIDFromContext(context.Background())
	require.False(t, ok)

	ctx := ContextWithTraceID(context.Background(), "abc-123")
	got, ok := TraceIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "abc-123", got)
}
