package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.InvocationID != "" {
		logger = logger.With().Str("invocation_id", tc.InvocationID).Logger()
	}
	if tc.WorkspaceID != "" {
		logger = logger.With().Str("workspace_id", tc.WorkspaceID).Logger()
	}
	if tc.FlowID != "" {
		logger = logger.With().Str("flow_id", tc.FlowID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}
