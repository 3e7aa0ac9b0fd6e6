package analytics

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/chatsell/agency_dash/backend/internal/app"
	"github.com/chatsell/agency_dash/backend/internal/httpserver/httputil"
	"github.com/chatsell/agency_dash/backend/internal/limits"
	"github.com/chatsell/agency_dash/backend/internal/requestctx"
)

// requestContextMiddleware pins the tenant and reference instant for the request.
func requestContextMiddleware(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID, _ := c.Locals("requestid").(string)
		ctx := container.WithRequestContext(c.UserContext(), requestID, c.Params("tenant"))
		c.SetUserContext(ctx)
		if rc, ok := requestctx.FromContext(ctx); ok {
			c.Locals(requestctx.FiberLocalsKey(), rc)
		}
		return c.Next()
	}
}

// tenantRateLimitMiddleware rejects tenants over their request budget. Limiter
// outages let the request through.
func tenantRateLimitMiddleware(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		release, err := container.AcquireTenantLimit(c.UserContext(), c.Params("tenant"))
		if err != nil {
			if errors.Is(err, limits.ErrLimitExceeded) {
				return httputil.WriteError(c, fiber.StatusTooManyRequests, "rate limit exceeded")
			}
			if container.Logger != nil {
				container.Logger.Warn("rate limiter unavailable",
					slog.String("tenant", c.Params("tenant")),
					slog.String("error", err.Error()))
			}
			return c.Next()
		}
		defer release()
		return c.Next()
	}
}
