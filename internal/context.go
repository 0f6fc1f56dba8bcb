package internal

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// RequestIDKey correlates all log lines belonging to one recovery request
	RequestIDKey contextKey = "request_id"
	// WorkflowIDKey carries the active recovery workflow ID, when one exists
	WorkflowIDKey contextKey = "workflow_id"
)

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetWorkflowID retrieves the workflow ID from context, empty if unset
func GetWorkflowID(ctx context.Context) string {
	if id, ok := ctx.Value(WorkflowIDKey).(string); ok {
		return id
	}
	return ""
}

// WithWorkflowID adds a workflow ID to the context
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, WorkflowIDKey, workflowID)
}
