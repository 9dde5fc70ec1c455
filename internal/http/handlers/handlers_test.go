package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/services"
	"github.com/orderdesk/go-orders-backend/internal/upstream"
)

type fakeSyncSvc struct {
	gotBatch []upstream.Order
	gotOpts  services.ReconcileOptions
	result   services.BatchResult
}

func (f *fakeSyncSvc) Reconcile(_ context.Context, batch []upstream.Order, opts services.ReconcileOptions) services.BatchResult {
	f.gotBatch = batch
	f.gotOpts = opts
	return f.result
}

type fakeCacheSvc struct {
	gotScope services.CacheScope
	gotForce bool
	result   services.ValidationResult
	err      error
}

func (f *fakeCacheSvc) Validate(_ context.Context, scope services.CacheScope, force bool) (services.ValidationResult, error) {
	f.gotScope = scope
	f.gotForce = force
	return f.result, f.err
}

type fakeOrderSvc struct {
	withStats *services.OrderWithStats
	cacheRow  *domain.OrderCache
	orders    []domain.Order
	total     int64
	history   []domain.OrderHistory
	err       error

	pushedStatus string
	pushedActor  string

	invalidated string

	gotPage    int
	gotPerPage int
}

func (f *fakeOrderSvc) GetWithStats(_ context.Context, number string) (*services.OrderWithStats, error) {
	return f.withStats, f.err
}

func (f *fakeOrderSvc) RecomputeCache(_ context.Context, number string) (*domain.OrderCache, error) {
	return f.cacheRow, f.err
}

func (f *fakeOrderSvc) List(_ context.Context, from, to *time.Time, page, perPage int) ([]domain.Order, int64, error) {
	f.gotPage = page
	f.gotPerPage = perPage
	return f.orders, f.total, f.err
}

func (f *fakeOrderSvc) InvalidateCache(_ context.Context, number string) error {
	f.invalidated = number
	return f.err
}

func (f *fakeOrderSvc) History(_ context.Context, number string, limit int) ([]domain.OrderHistory, error) {
	return f.history, f.err
}

func (f *fakeOrderSvc) PushStatus(_ context.Context, number, status, statusText, actorID string) error {
	f.pushedStatus = status
	f.pushedActor = actorID
	return f.err
}

type fakeFeed struct {
	gotSince time.Time
	orders   []upstream.Order
	err      error
}

func (f *fakeFeed) FetchOrdersSince(_ context.Context, since time.Time) ([]upstream.Order, error) {
	f.gotSince = since
	return f.orders, f.err
}

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sync/reconcile", h.Reconcile)
	r.POST("/cache/validate", h.ValidateCache)
	r.GET("/orders", h.ListOrders)
	r.GET("/orders/:number", h.GetOrder)
	r.GET("/orders/:number/history", h.GetOrderHistory)
	r.POST("/orders/:number/cache", h.RecomputeOrderCache)
	r.DELETE("/orders/:number/cache", h.InvalidateOrderCache)
	r.POST("/orders/:number/status", h.PushOrderStatus)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReconcile_OK(t *testing.T) {
	sync := &fakeSyncSvc{result: services.BatchResult{Created: 1, Updated: 1, Skipped: 1}}
	feed := &fakeFeed{orders: []upstream.Order{{ID: 1, Number: "1"}}}
	r := newTestRouter(New(sync, &fakeCacheSvc{}, &fakeOrderSvc{}, feed))

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	w := doJSON(t, r, http.MethodPost, "/sync/reconcile", gin.H{"since": since, "force": true, "batch_size": 10})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !feed.gotSince.Equal(since) {
		t.Errorf("feed since = %v, want %v", feed.gotSince, since)
	}
	if !sync.gotOpts.ForceUpdate || sync.gotOpts.BatchSize != 10 {
		t.Errorf("opts = %+v", sync.gotOpts)
	}

	var res services.BatchResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Created != 1 || res.Updated != 1 || res.Skipped != 1 {
		t.Errorf("res = %+v", res)
	}
}

func TestReconcile_EmptyBodyUsesDefaults(t *testing.T) {
	sync := &fakeSyncSvc{}
	feed := &fakeFeed{}
	r := newTestRouter(New(sync, &fakeCacheSvc{}, &fakeOrderSvc{}, feed))

	req := httptest.NewRequest(http.MethodPost, "/sync/reconcile", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if time.Since(feed.gotSince) > 25*time.Hour || time.Since(feed.gotSince) < 23*time.Hour {
		t.Errorf("default since = %v, want ~24h ago", feed.gotSince)
	}
}

func TestReconcile_FeedUnavailable(t *testing.T) {
	feed := &fakeFeed{err: errors.New("rate limited")}
	r := newTestRouter(New(&fakeSyncSvc{}, &fakeCacheSvc{}, &fakeOrderSvc{}, feed))

	w := doJSON(t, r, http.MethodPost, "/sync/reconcile", gin.H{})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != ErrCodeSyncFailed {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestReconcile_InlineOrdersBypassFeed(t *testing.T) {
	sync := &fakeSyncSvc{result: services.BatchResult{Created: 2}}
	feed := &fakeFeed{err: errors.New("must not be called")}
	r := newTestRouter(New(sync, &fakeCacheSvc{}, &fakeOrderSvc{}, feed))

	w := doJSON(t, r, http.MethodPost, "/sync/reconcile", gin.H{
		"orders": []gin.H{{"id": 7, "number": "7"}, {"id": 8, "number": "8"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(sync.gotBatch) != 2 || sync.gotBatch[0].ID != 7 {
		t.Errorf("batch = %+v, want the inline orders", sync.gotBatch)
	}
}

func TestValidateCache(t *testing.T) {
	cache := &fakeCacheSvc{result: services.ValidationResult{Processed: 5, CacheHits: 3, Updated: 2}}
	r := newTestRouter(New(&fakeSyncSvc{}, cache, &fakeOrderSvc{}, &fakeFeed{}))

	w := doJSON(t, r, http.MethodPost, "/cache/validate", gin.H{"force": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !cache.gotForce {
		t.Error("force flag not propagated")
	}

	cache.err = services.ErrBadDateRange
	w = doJSON(t, r, http.MethodPost, "/cache/validate", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetOrder(t *testing.T) {
	svc := &fakeOrderSvc{withStats: &services.OrderWithStats{
		Order: &domain.Order{ID: 7, Number: "7"},
		Cache: &domain.OrderCache{OrderNumber: "7", TotalQuantity: 3},
	}}
	r := newTestRouter(New(&fakeSyncSvc{}, &fakeCacheSvc{}, svc, &fakeFeed{}))

	w := doJSON(t, r, http.MethodGet, "/orders/7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got services.OrderWithStats
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Order.ID != 7 || got.Cache.TotalQuantity != 3 {
		t.Errorf("body = %+v", got)
	}

	svc.withStats = nil
	svc.err = services.ErrOrderNotFound
	w = doJSON(t, r, http.MethodGet, "/orders/404", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestListOrders_Pagination(t *testing.T) {
	svc := &fakeOrderSvc{orders: []domain.Order{{ID: 1}, {ID: 2}}, total: 45}
	r := newTestRouter(New(&fakeSyncSvc{}, &fakeCacheSvc{}, svc, &fakeFeed{}))

	w := doJSON(t, r, http.MethodGet, "/orders?page=1&per_page=20", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res ListOrdersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Pagination.Total != 45 || res.Pagination.TotalPages != 3 || !res.Pagination.HasNext {
		t.Errorf("pagination = %+v", res.Pagination)
	}
}

func TestListOrders_ClampsPagination(t *testing.T) {
	cases := []struct {
		name        string
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"defaults", "", 1, 20},
		{"oversized per_page capped", "?page=2&per_page=500", 2, 100},
		{"negative values fall back", "?page=-1&per_page=-3", 1, 20},
		{"garbage falls back", "?page=abc&per_page=xyz", 1, 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeOrderSvc{}
			r := newTestRouter(New(&fakeSyncSvc{}, &fakeCacheSvc{}, svc, &fakeFeed{}))

			w := doJSON(t, r, http.MethodGet, "/orders"+tc.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			if svc.gotPage != tc.wantPage || svc.gotPerPage != tc.wantPerPage {
				t.Errorf("page/per_page = %d/%d, want %d/%d",
					svc.gotPage, svc.gotPerPage, tc.wantPage, tc.wantPerPage)
			}
		})
	}
}

func TestListOrders_BadDate(t *testing.T) {
	r := newTestRouter(New(&fakeSyncSvc{}, &fakeCacheSvc{}, &fakeOrderSvc{}, &fakeFeed{}))
	w := doJSON(t, r, http.MethodGet, "/orders?from=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRecomputeOrderCache(t *testing.T) {
	svc := &fakeOrderSvc{cacheRow: &domain.OrderCache{OrderNumber: "9", TotalQuantity: 4}}
	r := newTestRouter(New(&fakeSyncSvc{}, &fakeCacheSvc{}, svc, &fakeFeed{}))

	w := doJSON(t, r, http.MethodPost, "/orders/9/cache", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var row domain.OrderCache
	if err := json.Unmarshal(w.Body.Bytes(), &row); err != nil {
		t.Fatal(err)
	}
	if row.TotalQuantity != 4 {
		t.Errorf("row = %+v", row)
	}
}

func TestInvalidateOrderCache(t *testing.T) {
	svc := &fakeOrderSvc{}
	r := newTestRouter(New(&fakeSyncSvc{}, &fakeCacheSvc{}, svc, &fakeFeed{}))

	w := doJSON(t, r, http.MethodDelete, "/orders/9/cache", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.invalidated != "9" {
		t.Errorf("invalidated = %q, want %q", svc.invalidated, "9")
	}

	svc.err = services.ErrOrderNotFound
	w = doJSON(t, r, http.MethodDelete, "/orders/404/cache", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestPushOrderStatus(t *testing.T) {
	svc := &fakeOrderSvc{}
	r := newTestRouter(New(&fakeSyncSvc{}, &fakeCacheSvc{}, svc, &fakeFeed{}))

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(gin.H{"status": "7", "status_text": "delivered"})
	req := httptest.NewRequest(http.MethodPost, "/orders/5/status", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "ops-9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.pushedStatus != "7" || svc.pushedActor != "ops-9" {
		t.Errorf("pushed = %q by %q", svc.pushedStatus, svc.pushedActor)
	}

	w = doJSON(t, r, http.MethodPost, "/orders/5/status", gin.H{"status_text": "missing status"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
