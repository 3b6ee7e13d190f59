package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// emitIDKey is the context key for the bus emission ID.
var emitIDKey = contextKey{}

// WithEmitID returns a new context carrying the bus emission ID. The bus
// tags every dispatch so handler logs and history records correlate back
// to one emission.
func WithEmitID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, emitIDKey, id)
}

// EmitID extracts the bus emission ID from the context.
// Returns an empty string if none is set.
func EmitID(ctx context.Context) string {
	id, _ := ctx.Value(emitIDKey).(string)
	return id
}
