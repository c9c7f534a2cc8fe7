package logger

import "context"

// ctxKey keeps this package's context values from colliding with anyone
// else's string keys.
type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stores the request id on the context so handlers and log
// middleware further down the chain can correlate their output.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id carried by ctx, or "" when the request
// never passed through the request-id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
