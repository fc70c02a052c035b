package core

import "context"

type contextKey string

const (
	ctxKeyRunID     contextKey = "run_id"
	ctxKeyConnector contextKey = "connector"
)

// ContextWithRunID tags ctx with the id of the connector run it belongs to.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, id)
}

// ContextWithConnector tags ctx with the connector being run.
func ContextWithConnector(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyConnector, name)
}

// RunIDFromContext extracts the run id from context.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRunID).(string); ok {
		return v
	}
	return ""
}

// ConnectorFromContext extracts the connector name from context.
func ConnectorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyConnector).(string); ok {
		return v
	}
	return ""
}
