package requestctx

import (
	"context"
	"time"
)

type contextKey string

const fiberLocalsKey = "requestctx"

// Key is the typed context key used for storing the RequestContext.
var Key contextKey = "agency-dash/requestctx"

// Context captures the tenant and reference instant resolved once per analytics request.
type Context struct {
	RequestID string
	Tenant    string
	// Now is the single reference instant used by every window computed for the request.
	Now time.Time
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok
}

// NowFrom returns the request reference instant, or fallback() when none was attached.
func NowFrom(ctx context.Context, fallback func() time.Time) time.Time {
	if rc, ok := FromContext(ctx); ok && rc != nil && !rc.Now.IsZero() {
		return rc.Now
	}
	return fallback()
}

// FiberLocalsKey returns the key used in fiber.Locals for request context storage.
func FiberLocalsKey() string {
	return fiberLocalsKey
}
