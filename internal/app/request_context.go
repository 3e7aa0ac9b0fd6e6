package app

import (
	"context"
	"strings"

	"github.com/chatsell/agency_dash/backend/internal/requestctx"
)

// BuildRequestContext pins the tenant and the single reference instant used by every
// computation of one analytics request.
func (c *Container) BuildRequestContext(requestID, tenant string) *requestctx.Context {
	return &requestctx.Context{
		RequestID: requestID,
		Tenant:    strings.TrimSpace(tenant),
		Now:       c.Now().In(c.ReportingLoc()),
	}
}

// WithRequestContext attaches a freshly built request context to ctx.
func (c *Container) WithRequestContext(ctx context.Context, requestID, tenant string) context.Context {
	return requestctx.WithContext(ctx, c.BuildRequestContext(requestID, tenant))
}
