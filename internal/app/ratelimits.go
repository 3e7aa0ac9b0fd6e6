package app

import (
	"context"
	"sync"

	"github.com/chatsell/agency_dash/backend/internal/limits"
)

// AcquireTenantLimit reserves one request slot for tenant. The returned release
// func is safe to call more than once.
func (c *Container) AcquireTenantLimit(ctx context.Context, tenant string) (func(), error) {
	noop := func() {}
	if c == nil || c.RateLimiter == nil || !c.TenantLimit.Enabled() {
		return noop, nil
	}

	key := limits.TenantKey(tenant)
	cfg := c.TenantLimit
	if err := c.RateLimiter.Allow(ctx, key, cfg); err != nil {
		return noop, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Release even when the request context is already canceled.
			c.RateLimiter.Release(context.WithoutCancel(ctx), key, cfg)
		})
	}
	return release, nil
}
