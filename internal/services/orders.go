// Package services – order read path and single-order repair
//
// OrderService serves the read side: one order joined with its derived
// stats, paginated listings for the reporting endpoints, the audit trail,
// and the on-demand single-order cache repair. It also pushes manual status
// changes back to the upstream platform.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/repo"
	"github.com/orderdesk/go-orders-backend/internal/upstream"
)

// OrderWithStats is one order joined with its derived cache. Cache is nil
// when no cache row exists, which is a valid, repairable state.
type OrderWithStats struct {
	Order *domain.Order      `json:"order"`
	Cache *domain.OrderCache `json:"cache,omitempty"`
}

// OrderService serves reads and single-order repairs.
type OrderService struct {
	DB      *gorm.DB
	Store   Store
	Catalog CatalogLookup
	// VirtualWarehouseID is excluded from rebuilt stock snapshots.
	VirtualWarehouseID string
	// Upstream is used for status push-back; may be nil when the backend
	// runs read-only against the feed.
	Upstream upstream.Client

	Log zerolog.Logger
}

// NewOrderService constructs an OrderService.
func NewOrderService(db *gorm.DB, store Store, catalog CatalogLookup, virtualWarehouseID string, up upstream.Client, log zerolog.Logger) *OrderService {
	return &OrderService{
		DB:                 db,
		Store:              store,
		Catalog:            catalog,
		VirtualWarehouseID: virtualWarehouseID,
		Upstream:           up,
		Log:                log,
	}
}

// GetWithStats returns the order with the given number together with its
// cache row, if any.
func (s *OrderService) GetWithStats(ctx context.Context, number string) (*OrderWithStats, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrEmptyOrderNumber
	}
	o, err := s.Store.GetOrderByNumber(ctx, s.DB, number)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	out := &OrderWithStats{Order: o}

	c, err := s.Store.GetCache(ctx, s.DB, number)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		// absent cache is fine
	case err != nil:
		return nil, err
	default:
		out.Cache = c
	}
	return out, nil
}

// RecomputeCache rebuilds the cache row for one order on demand and returns
// the fresh row.
func (s *OrderService) RecomputeCache(ctx context.Context, number string) (*domain.OrderCache, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrEmptyOrderNumber
	}
	o, err := s.Store.GetOrderByNumber(ctx, s.DB, number)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	calc := &Calculator{
		Catalog:            s.Catalog,
		VirtualWarehouseID: s.VirtualWarehouseID,
		Log:                s.Log,
	}
	items, err := domain.DecodeLineItems(o.Items)
	if err != nil {
		s.Log.Warn().Str("order", number).Err(err).Msg("malformed line items, cache built empty")
		items = nil
	}
	agg := calc.Aggregate(ctx, items)
	row, warns := buildCacheRow(o.Number, o.Items, agg, time.Now().UTC())
	for _, w := range warns {
		s.Log.Warn().Str("order", number).Msg(w)
	}
	if err := s.Store.UpsertCache(ctx, s.DB, row); err != nil {
		cacheRebuilds.WithLabelValues("error").Inc()
		return nil, err
	}
	cacheRebuilds.WithLabelValues("ok").Inc()
	return row, nil
}

// InvalidateCache drops the derived cache row for one order. The next read
// or validation pass rebuilds it from the order's line items.
func (s *OrderService) InvalidateCache(ctx context.Context, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return ErrEmptyOrderNumber
	}
	if _, err := s.Store.GetOrderByNumber(ctx, s.DB, number); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOrderNotFound
		}
		return err
	}
	return s.Store.DeleteCache(ctx, s.DB, number)
}

// List returns one page of orders, newest first, with the total count for
// pagination.
func (s *OrderService) List(ctx context.Context, from, to *time.Time, page, perPage int) ([]domain.Order, int64, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, 0, ErrBadDateRange
	}
	total, err := repo.CountOrders(ctx, s.DB, from, to)
	if err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * perPage
	items, err := repo.ListOrdersPage(ctx, s.DB, from, to, offset, perPage)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// History returns the most recent audit entries for one order.
func (s *OrderService) History(ctx context.Context, number string, limit int) ([]domain.OrderHistory, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrEmptyOrderNumber
	}
	o, err := s.Store.GetOrderByNumber(ctx, s.DB, number)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return repo.ListHistory(ctx, s.DB, o.ID, limit)
}

// PushStatus records a manual status change locally and propagates it to
// the upstream platform. The local write happens first; a rejected or
// failed push leaves the row marked so the next sync can settle it.
func (s *OrderService) PushStatus(ctx context.Context, number, status, statusText, actorID string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return ErrEmptyOrderNumber
	}
	o, err := s.Store.GetOrderByNumber(ctx, s.DB, number)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}

	if err := s.Store.UpdateOrderFields(ctx, s.DB, o.ID, map[string]any{
		"status":      status,
		"status_text": statusText,
	}); err != nil {
		return err
	}
	if err := s.Store.AppendHistory(ctx, s.DB, &domain.OrderHistory{
		OrderID:    o.ID,
		Status:     status,
		StatusText: statusText,
		Source:     "manual",
		ActorID:    actorID,
	}); err != nil {
		s.Log.Warn().Str("order", number).Err(err).Msg("history append failed")
	}

	if s.Upstream == nil {
		return nil
	}
	accepted, err := s.Upstream.UpdateStatus(ctx, number, status)
	if err != nil {
		return err
	}
	if !accepted {
		s.Log.Warn().Str("order", number).Str("status", status).
			Msg("upstream rejected status change")
	}
	return nil
}
