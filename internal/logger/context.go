package logger

import "context"

type requestIDKey struct{}
type scopeKey struct{}

type scope struct {
	tenantID string
	userID   string
}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithScope records the tenant and user a request acts for so that every
// record logged with ctx carries them.
func WithScope(ctx context.Context, tenantID, userID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{tenantID: tenantID, userID: userID})
}

func scopeFrom(ctx context.Context) *scope {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}
