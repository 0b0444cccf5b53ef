package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/compliance_api/internal/events"
	"github.com/Skotchmaster/compliance_api/internal/util"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
)

type AuditSearcher interface {
	Search(ctx context.Context, userID, query string, from, size int) (int64, []events.Event, error)
}

type AuditHTTP struct {
	Index AuditSearcher
}

// Events lists the caller's own auth events, newest first.
func (h *AuditHTTP) Events(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "audit_events")

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	page, from, size := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	q := c.QueryParam("q")

	total, items, err := h.Index.Search(ctx, userID.String(), q, from, size)
	if err != nil {
		l.Error("audit_search_failed", "status", 502, "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "audit search unavailable").SetInternal(err)
	}
	if items == nil {
		items = []events.Event{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total": total,
		"page":  page,
		"size":  size,
		"items": items,
	})
}
