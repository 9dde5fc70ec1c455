// Package handlers – cache maintenance endpoints
//
// POST /cache/validate runs the validator over a date scope, POST
// /orders/:number/cache repairs a single order's derived stats on demand,
// and GET /cache/stats reports coverage of the derived cache.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orderdesk/go-orders-backend/internal/repo"
	"github.com/orderdesk/go-orders-backend/internal/services"
)

// ValidateCacheRequest is the JSON payload for a cache validation run.
type ValidateCacheRequest struct {
	// From and To bound candidate orders by order date; both nil means
	// all time.
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
	// Force rebuilds every candidate regardless of freshness.
	Force bool `json:"force"`
}

// ValidateCache handles POST /cache/validate.
func (h *Handlers) ValidateCache(c *gin.Context) {
	var req ValidateCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid validate payload")
		return
	}

	res, err := h.cacheSvc.Validate(c.Request.Context(), services.CacheScope{From: req.From, To: req.To}, req.Force)
	switch {
	case errors.Is(err, services.ErrBadDateRange):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeValidateFailed, "cache validation failed")
	default:
		ok(c, http.StatusOK, res)
	}
}

// CacheStatsResponse reports how well the derived cache covers the orders
// table. A cache count below the order count, or an oldest cache entry far
// behind the latest order update, signals drift worth a validation run.
type CacheStatsResponse struct {
	Orders            int64      `json:"orders"`
	LatestOrderUpdate *time.Time `json:"latest_order_update,omitempty"`
	CacheRows         int64      `json:"cache_rows"`
	OldestCacheUpdate *time.Time `json:"oldest_cache_update,omitempty"`
}

// CacheStats handles GET /cache/stats. It reads table-level counters
// directly, so it stays cheap enough for dashboards to poll.
func (h *Handlers) CacheStats(c *gin.Context) {
	svc, okSvc := h.cacheSvc.(*services.CacheService)
	if !okSvc || svc.DB == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "cache stats unavailable")
		return
	}

	orders, latest, err := repo.OrdersStats(c.Request.Context(), svc.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read order stats")
		return
	}
	rows, oldest, err := repo.CacheStats(c.Request.Context(), svc.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read cache stats")
		return
	}

	ok(c, http.StatusOK, CacheStatsResponse{
		Orders:            orders,
		LatestOrderUpdate: latest,
		CacheRows:         rows,
		OldestCacheUpdate: oldest,
	})
}

// RecomputeOrderCache handles POST /orders/:number/cache, rebuilding and
// returning the derived stats row for one order.
func (h *Handlers) RecomputeOrderCache(c *gin.Context) {
	row, err := h.orderSvc.RecomputeCache(c.Request.Context(), c.Param("number"))
	switch {
	case errors.Is(err, services.ErrEmptyOrderNumber):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrOrderNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeRecomputeFailed, "cache recompute failed")
	default:
		ok(c, http.StatusOK, row)
	}
}
