// Package requestctx carries the authenticated caller between HTTP middleware
// and handlers.
package requestctx

import "context"

// phantomIDContextKey is the context key for the authenticated Phantom ID.
type phantomIDContextKey struct{}

// WithPhantomID stores an authenticated Phantom ID in context.
func WithPhantomID(ctx context.Context, phantomID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, phantomIDContextKey{}, phantomID)
}

// PhantomIDFromContext returns the authenticated Phantom ID stored in context.
func PhantomIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(phantomIDContextKey{}).(string)
	return value
}
