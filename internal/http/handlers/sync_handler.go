// Package handlers – synchronization endpoint
//
// POST /sync/reconcile pulls every order changed upstream since a given
// instant and drives it through the reconciliation engine. The endpoint
// always answers with the full per-order summary, even under partial
// failure; callers must not assume all-or-nothing semantics.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orderdesk/go-orders-backend/internal/http/middleware"
	"github.com/orderdesk/go-orders-backend/internal/services"
	"github.com/orderdesk/go-orders-backend/internal/upstream"
)

// ReconcileRequest is the JSON payload for a reconciliation run.
type ReconcileRequest struct {
	// Orders is an optional inline batch. When present the upstream feed is
	// not consulted; callers that already hold the records (replays, tests)
	// submit them directly.
	Orders []upstream.Order `json:"orders"`
	// Since bounds the upstream pull (RFC3339). Defaults to 24h ago.
	// Ignored when Orders is present.
	Since *time.Time `json:"since"`
	// Force bypasses the skip decision for unchanged orders.
	Force bool `json:"force"`
	// BatchSize and Concurrency override the configured defaults when > 0.
	BatchSize   int `json:"batch_size"`
	Concurrency int `json:"concurrency"`
}

// Reconcile handles POST /sync/reconcile.
func (h *Handlers) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid reconcile payload")
		return
	}

	batch := req.Orders
	if len(batch) == 0 {
		since := time.Now().Add(-24 * time.Hour)
		if req.Since != nil {
			since = *req.Since
		}

		var err error
		batch, err = h.feed.FetchOrdersSince(c.Request.Context(), since)
		if err != nil {
			middleware.LoggerFrom(c).Error().Err(err).Time("since", since).Msg("upstream fetch failed")
			fail(c, http.StatusBadGateway, ErrCodeSyncFailed, "upstream feed unavailable")
			return
		}
	}

	res := h.syncSvc.Reconcile(c.Request.Context(), batch, services.ReconcileOptions{
		BatchSize:   req.BatchSize,
		Concurrency: req.Concurrency,
		ForceUpdate: req.Force,
	})
	ok(c, http.StatusOK, res)
}
