package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// InvocationIDKey is the context key for the invocation uuid
	InvocationIDKey ContextKey = "invocation_id"
	// WorkspaceIDKey is the context key for the owning workspace
	WorkspaceIDKey ContextKey = "workspace_id"
	// FlowIDKey is the context key for the flow uuid during workflow runs
	FlowIDKey ContextKey = "flow_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID      string
	InvocationID string
	WorkspaceID  string
	FlowID       string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithInvocationID adds an invocation uuid to the context
func WithInvocationID(ctx context.Context, invocationID string) context.Context {
	return context.WithValue(ctx, InvocationIDKey, invocationID)
}

// WithWorkspaceID adds a workspace id to the context
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, WorkspaceIDKey, workspaceID)
}

// WithFlowID adds a flow uuid to the context
func WithFlowID(ctx context.Context, flowID string) context.Context {
	return context.WithValue(ctx, FlowIDKey, flowID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetInvocationID retrieves the invocation uuid from the context
func GetInvocationID(ctx context.Context) string {
	if invocationID, ok := ctx.Value(InvocationIDKey).(string); ok {
		return invocationID
	}
	return ""
}

// GetWorkspaceID retrieves the workspace id from the context
func GetWorkspaceID(ctx context.Context) string {
	if workspaceID, ok := ctx.Value(WorkspaceIDKey).(string); ok {
		return workspaceID
	}
	return ""
}

// GetFlowID retrieves the flow uuid from the context
func GetFlowID(ctx context.Context) string {
	if flowID, ok := ctx.Value(FlowIDKey).(string); ok {
		return flowID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:      GetTraceID(ctx),
		InvocationID: GetInvocationID(ctx),
		WorkspaceID:  GetWorkspaceID(ctx),
		FlowID:       GetFlowID(ctx),
	}
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewInvocationContext creates a context carrying invocation identity
func NewInvocationContext(ctx context.Context, invocationID, workspaceID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithInvocationID(ctx, invocationID)
	ctx = WithWorkspaceID(ctx, workspaceID)
	return ctx
}
