package analytics

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatsell/agency_dash/backend/internal/app"
)

// Register wires up the /analytics routes.
func Register(app *fiber.App, container *app.Container) {
	handler := &analyticsHandler{
		container: container,
		service:   container.Analytics,
	}

	group := app.Group("/analytics")
	group.Get("/brands", requestContextMiddleware(container), handler.brandsRanking)

	tenant := group.Group("/:tenant", requestContextMiddleware(container), tenantRateLimitMiddleware(container))
	tenant.Get("/summary", handler.usersSummary)
	tenant.Get("/users/timeseries", handler.usersTimeseries)
	tenant.Get("/finance/summary", handler.financeSummary)
	tenant.Get("/finance/timeseries", handler.financeTimeseries)
	tenant.Get("/top/profit", handler.topProfitable)
	tenant.Get("/team/summary", handler.teamSummary)
	tenant.Get("/client/distribution", handler.clientDistribution)
}
