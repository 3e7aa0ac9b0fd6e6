package analytics

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/chatsell/agency_dash/backend/internal/app"
	"github.com/chatsell/agency_dash/backend/internal/httpserver/httputil"
	analyticssvc "github.com/chatsell/agency_dash/backend/internal/services/analytics"
	"github.com/chatsell/agency_dash/backend/internal/timeutil"
)

type analyticsHandler struct {
	container *app.Container
	service   *analyticssvc.Service
}

func (h *analyticsHandler) usersSummary(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	out, err := h.service.UsersSummary(c.UserContext(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(out)
}

func (h *analyticsHandler) usersTimeseries(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	out, err := h.service.UsersTimeseries(c.UserContext(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(out)
}

func (h *analyticsHandler) financeSummary(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	out, err := h.service.FinanceSummary(c.UserContext(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(out)
}

func (h *analyticsHandler) financeTimeseries(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	out, err := h.service.FinanceTimeseries(c.UserContext(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(out)
}

func (h *analyticsHandler) topProfitable(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	req.Limit = parsePositiveInt(c.Query("limit"), 0)
	out, err := h.service.TopProfitable(c.UserContext(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(out)
}

func (h *analyticsHandler) teamSummary(c *fiber.Ctx) error {
	out, err := h.service.TeamSummary(c.UserContext(), c.Params("tenant"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(out)
}

func (h *analyticsHandler) clientDistribution(c *fiber.Ctx) error {
	out, err := h.service.ClientDistribution(c.UserContext(), c.Params("tenant"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(out)
}

func (h *analyticsHandler) brandsRanking(c *fiber.Ctx) error {
	out, err := h.service.BrandsRanking(c.UserContext())
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(out)
}

// parseRequest reads the tenant path segment and the from/to/bucket query params.
func (h *analyticsHandler) parseRequest(c *fiber.Ctx) (analyticssvc.Request, error) {
	loc := h.service.Location()
	from, err := timeutil.ParseDate(c.Query("from"), loc)
	if err != nil {
		return analyticssvc.Request{}, err
	}
	to, err := timeutil.ParseDate(c.Query("to"), loc)
	if err != nil {
		return analyticssvc.Request{}, err
	}
	return analyticssvc.Request{
		Tenant: c.Params("tenant"),
		From:   from,
		To:     to,
		Bucket: analyticssvc.Bucket(strings.TrimSpace(c.Query("bucket"))),
	}, nil
}

func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, analyticssvc.ErrTenantRequired):
		return httputil.WriteError(c, fiber.StatusBadRequest, "tenant is required")
	case errors.Is(err, analyticssvc.ErrInvalidDate):
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	case errors.Is(err, analyticssvc.ErrInvalidRange):
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid date range: from is after to")
	case errors.Is(err, analyticssvc.ErrInvalidBucket):
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid bucket")
	case errors.Is(err, analyticssvc.ErrStoreFailure):
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "analytics temporarily unavailable")
	}
	return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if value, err := strconv.Atoi(raw); err == nil && value > 0 {
		return value
	}
	return fallback
}
