package interceptor

import "context"

type withoutAuthContextKey struct{}
type retriedContextKey struct{}

// WithoutAuth marks requests built from ctx as unauthenticated: the transport neither
// attaches a token nor renews on 401. Login and refresh calls use it.
func WithoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, withoutAuthContextKey{}, true)
}

// IsRetry reports whether ctx belongs to a request already resent after a 401.
func IsRetry(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	retried, _ := ctx.Value(retriedContextKey{}).(bool)
	return retried
}

func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedContextKey{}, true)
}

func skipAuth(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	skip, _ := ctx.Value(withoutAuthContextKey{}).(bool)
	return skip
}
