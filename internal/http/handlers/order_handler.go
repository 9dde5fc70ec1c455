// Package handlers – order read endpoints
//
// This file exposes the read side of the API: paginated order listings, a
// single order joined with its derived product stats, the audit trail, and
// the manual status push-back. Handlers depend on abstract service
// interfaces to keep transport concerns separate from business logic.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/repo"
	"github.com/orderdesk/go-orders-backend/internal/services"
	"github.com/orderdesk/go-orders-backend/internal/upstream"
	"github.com/orderdesk/go-orders-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SyncService defines the reconciliation operations consumed by HTTP handlers.
type SyncService interface {
	// Reconcile brings the local store in line with the given upstream batch.
	Reconcile(ctx context.Context, batch []upstream.Order, opts services.ReconcileOptions) services.BatchResult
}

// CacheService defines cache validation operations consumed by HTTP handlers.
type CacheService interface {
	// Validate classifies orders in scope against their cache rows and
	// rebuilds what diverged.
	Validate(ctx context.Context, scope services.CacheScope, force bool) (services.ValidationResult, error)
}

// OrderService defines order read and repair operations.
type OrderService interface {
	// GetWithStats returns one order joined with its derived cache.
	GetWithStats(ctx context.Context, number string) (*services.OrderWithStats, error)
	// RecomputeCache rebuilds the cache row for one order on demand.
	RecomputeCache(ctx context.Context, number string) (*domain.OrderCache, error)
	// List returns a page of orders, newest first, plus the total count.
	List(ctx context.Context, from, to *time.Time, page, perPage int) ([]domain.Order, int64, error)
	// InvalidateCache drops the derived cache row for one order.
	InvalidateCache(ctx context.Context, number string) error
	// History returns the most recent audit entries for one order.
	History(ctx context.Context, number string, limit int) ([]domain.OrderHistory, error)
	// PushStatus records a manual status change and propagates it upstream.
	PushStatus(ctx context.Context, number, status, statusText, actorID string) error
}

// Feed is the slice of the upstream client the sync endpoint pulls from.
type Feed interface {
	FetchOrdersSince(ctx context.Context, since time.Time) ([]upstream.Order, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for synchronization, cache maintenance,
// and order reads.
type Handlers struct {
	syncSvc  SyncService
	cacheSvc CacheService
	orderSvc OrderService
	feed     Feed
}

// New constructs a Handlers instance bound to the given services.
func New(syncSvc SyncService, cacheSvc CacheService, orderSvc OrderService, feed Feed) *Handlers {
	return &Handlers{syncSvc: syncSvc, cacheSvc: cacheSvc, orderSvc: orderSvc, feed: feed}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListOrdersResponse wraps a page of orders and pagination information.
type ListOrdersResponse struct {
	Orders     []domain.Order `json:"orders"`
	Pagination Pagination     `json:"pagination"`
}

// PushStatusRequest is the JSON payload for a manual status change.
type PushStatusRequest struct {
	Status     string `json:"status" binding:"required,min=1,max=16"`
	StatusText string `json:"status_text" binding:"max=128"`
}

//
// Helpers
//

// parseTimeParam accepts RFC3339 or a bare date (2006-01-02). A missing
// value yields nil.
func parseTimeParam(v string) (*time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, true
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, true
	}
	return nil, false
}

// dateRange parses the from/to query params, failing the request on
// malformed input.
func dateRange(c *gin.Context) (from, to *time.Time, ok bool) {
	from, ok = parseTimeParam(c.Query("from"))
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid 'from' date")
		return nil, nil, false
	}
	to, ok = parseTimeParam(c.Query("to"))
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid 'to' date")
		return nil, nil, false
	}
	return from, to, true
}

//
// Endpoints
//

// ListOrders handles GET /orders. Optional from/to bound the order date;
// page/per_page control pagination.
func (h *Handlers) ListOrders(c *gin.Context) {
	from, to, okRange := dateRange(c)
	if !okRange {
		return
	}
	page := utils.ClampPage(utils.AtoiDefault(c.Query("page"), 1))
	perPage := utils.ClampPerPage(utils.AtoiDefault(c.Query("per_page"), 20), 20, 100)

	// Conditional GET: a weak validator over the orders table lets pollers
	// skip re-downloading an unchanged listing. Best effort; services
	// without a DB handle just serve the full response.
	if svc, okSvc := h.orderSvc.(*services.OrderService); okSvc && svc.DB != nil {
		count, maxTS, statErr := repo.OrdersStats(c.Request.Context(), svc.DB)
		if statErr == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"orders:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if c.GetHeader("If-None-Match") == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	orders, total, err := h.orderSvc.List(c.Request.Context(), from, to, page, perPage)
	if err != nil {
		if errors.Is(err, services.ErrBadDateRange) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list orders")
		return
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	ok(c, http.StatusOK, ListOrdersResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       page,
			PerPage:    perPage,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetOrder handles GET /orders/:number, returning the row joined with its
// derived stats. The cache may be absent; that is a valid state.
func (h *Handlers) GetOrder(c *gin.Context) {
	got, err := h.orderSvc.GetWithStats(c.Request.Context(), c.Param("number"))
	switch {
	case errors.Is(err, services.ErrEmptyOrderNumber):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrOrderNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load order")
	default:
		ok(c, http.StatusOK, got)
	}
}

// InvalidateOrderCache handles DELETE /orders/:number/cache, dropping the
// derived stats row so the next read or validation pass rebuilds it.
func (h *Handlers) InvalidateOrderCache(c *gin.Context) {
	err := h.orderSvc.InvalidateCache(c.Request.Context(), c.Param("number"))
	switch {
	case errors.Is(err, services.ErrEmptyOrderNumber):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrOrderNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not invalidate cache")
	default:
		noContent(c)
	}
}

// GetOrderHistory handles GET /orders/:number/history.
func (h *Handlers) GetOrderHistory(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 50)
	hist, err := h.orderSvc.History(c.Request.Context(), c.Param("number"), limit)
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load history")
	default:
		ok(c, http.StatusOK, gin.H{"history": hist})
	}
}

// PushOrderStatus handles POST /orders/:number/status. The change is written
// locally first and then propagated to the upstream platform.
func (h *Handlers) PushOrderStatus(c *gin.Context) {
	var req PushStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid status payload")
		return
	}
	actor := strings.TrimSpace(c.GetHeader("X-Actor-ID"))
	err := h.orderSvc.PushStatus(c.Request.Context(), c.Param("number"), req.Status, req.StatusText, actor)
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
	case err != nil:
		fail(c, http.StatusBadGateway, ErrCodeStatusPushFailed, "status push failed")
	default:
		noContent(c)
	}
}
