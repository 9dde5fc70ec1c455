// Package services – persistence contract
//
// This file defines the Store interface consumed by the sync and cache
// services, together with RepoStore, the production implementation backed by
// the repo package. Services depend on the interface so that tests can
// substitute in-memory fakes and count writes.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/repo"
)

// Store defines the repository contract required by the order services.
// Implementations are responsible for persistence of orders, caches, and
// history rows.
type Store interface {
	// GetOrder fetches an order by its upstream identifier.
	GetOrder(ctx context.Context, db *gorm.DB, id int64) (*domain.Order, error)

	// GetOrderByNumber fetches an order by its human-facing number.
	GetOrderByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Order, error)

	// CreateOrder inserts a new order row.
	CreateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error

	// UpdateOrderFields applies a column-scoped partial update to one order.
	UpdateOrderFields(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) error

	// ListOrdersInRange returns orders whose order_date falls in [from, to].
	// Nil bounds are open-ended.
	ListOrdersInRange(ctx context.Context, db *gorm.DB, from, to *time.Time) ([]domain.Order, error)

	// GetCache fetches the product-stats cache row for one order number.
	GetCache(ctx context.Context, db *gorm.DB, orderNumber string) (*domain.OrderCache, error)

	// GetCaches bulk-fetches cache rows keyed by order number.
	GetCaches(ctx context.Context, db *gorm.DB, orderNumbers []string) (map[string]domain.OrderCache, error)

	// UpsertCache inserts or replaces the cache row for an order.
	UpsertCache(ctx context.Context, db *gorm.DB, c *domain.OrderCache) error

	// DeleteCache removes the cache row for an order. Deleting a missing
	// row is not an error.
	DeleteCache(ctx context.Context, db *gorm.DB, orderNumber string) error

	// AppendHistory records a status transition in the order history.
	AppendHistory(ctx context.Context, db *gorm.DB, h *domain.OrderHistory) error
}

// RepoStore adapts the repo package's free functions to the Store interface.
type RepoStore struct{}

func (RepoStore) GetOrder(ctx context.Context, db *gorm.DB, id int64) (*domain.Order, error) {
	return repo.GetOrder(ctx, db, id)
}

func (RepoStore) GetOrderByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Order, error) {
	return repo.GetOrderByNumber(ctx, db, number)
}

func (RepoStore) CreateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return repo.CreateOrder(ctx, db, o)
}

func (RepoStore) UpdateOrderFields(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) error {
	return repo.UpdateOrderFields(ctx, db, id, fields)
}

func (RepoStore) ListOrdersInRange(ctx context.Context, db *gorm.DB, from, to *time.Time) ([]domain.Order, error) {
	return repo.ListOrdersInRange(ctx, db, from, to)
}

func (RepoStore) GetCache(ctx context.Context, db *gorm.DB, orderNumber string) (*domain.OrderCache, error) {
	return repo.GetCache(ctx, db, orderNumber)
}

func (RepoStore) GetCaches(ctx context.Context, db *gorm.DB, orderNumbers []string) (map[string]domain.OrderCache, error) {
	return repo.GetCaches(ctx, db, orderNumbers)
}

func (RepoStore) UpsertCache(ctx context.Context, db *gorm.DB, c *domain.OrderCache) error {
	return repo.UpsertCache(ctx, db, c)
}

func (RepoStore) DeleteCache(ctx context.Context, db *gorm.DB, orderNumber string) error {
	return repo.DeleteCache(ctx, db, orderNumber)
}

func (RepoStore) AppendHistory(ctx context.Context, db *gorm.DB, h *domain.OrderHistory) error {
	return repo.AppendHistory(ctx, db, h)
}
