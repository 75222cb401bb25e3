package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	t.Run("should only honor the first initialization", func(t *testing.T) {
		require.NoError(t, Init(Config{ServiceName: "tredy-test"}))
		assert.NoError(t, Init(Config{ServiceName: "someone-else"}))
	})
}

func TestStartSpan(t *testing.T) {
	t.Run("should mirror the trace id into the context", func(t *testing.T) {
		require.NoError(t, Init(Config{ServiceName: "tredy-test"}))

		ctx, span := StartSpan(context.Background(), "tredy.test", "test.op")
		defer span.End()

		assert.NotEmpty(t, GetTraceID(ctx))
	})

	t.Run("should keep an existing trace id", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "fixed-id")
		ctx, span := StartSpan(ctx, "tredy.test", "test.op")
		defer span.End()

		assert.Equal(t, "fixed-id", GetTraceID(ctx))
	})
}
