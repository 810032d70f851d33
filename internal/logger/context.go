package logger

import "context"

type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID stores the request ID so log lines emitted anywhere in the
// ingestion path can be correlated back to the webhook delivery.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the stored request ID, or "" when the context did not
// pass through the request-ID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
