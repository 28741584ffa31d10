package handler

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/akave-ai/logpipe/internal/model"
	"github.com/akave-ai/logpipe/internal/response"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// RecentLister reads persisted rows for inspection.
type RecentLister interface {
	ListRecent(ctx context.Context, limit int) ([]model.RawLog, error)
	Count(ctx context.Context) (int64, error)
}

// LogHandler serves /logs routes. Source returns nil until the store is connected.
type LogHandler struct {
	Source func() RecentLister
}

// Recent returns the newest rows (GET /logs/recent?limit=N).
func (h *LogHandler) Recent(c echo.Context) error {
	limit := defaultRecentLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return response.BadRequest(c, "invalid limit", "limit must be a positive integer")
		}
		limit = min(n, maxRecentLimit)
	}

	var store RecentLister
	if h.Source != nil {
		store = h.Source()
	}
	if store == nil {
		return response.Unavailable(c, "store not connected", "the consumer has not connected to the database yet")
	}

	ctx := c.Request().Context()
	logs, err := store.ListRecent(ctx, limit)
	if err != nil {
		return response.InternalError(c, "list logs failed", err.Error())
	}
	total, err := store.Count(ctx)
	if err != nil {
		return response.InternalError(c, "count logs failed", err.Error())
	}
	return response.OK(c, map[string]any{"logs": logs, "total": total}, "")
}
