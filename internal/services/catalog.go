// Package services – product catalog lookup
//
// This file defines CatalogLookup, the read contract the quantity calculator
// uses to resolve SKUs, plus two implementations: DBCatalog reads straight
// from the database, and BatchCatalog wraps another lookup with a memo that
// lives for the duration of one batch, so a SKU repeated across orders hits
// storage once. Missing products are memoized too.
package services

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/repo"
)

// CatalogLookup resolves a SKU to its product record.
// Implementations return repo.ErrNotFound when the SKU is unknown.
type CatalogLookup interface {
	Product(ctx context.Context, sku string) (*domain.Product, error)
}

// BulkCatalogLookup is implemented by lookups that can resolve many SKUs in
// one storage round trip. Absence from the result map means the SKU is
// unknown; errors are whole-call transient failures.
type BulkCatalogLookup interface {
	Products(ctx context.Context, skus []string) (map[string]domain.Product, error)
}

// DBCatalog resolves products directly against the database.
type DBCatalog struct {
	DB *gorm.DB
}

// Product fetches one product row by SKU.
func (c *DBCatalog) Product(ctx context.Context, sku string) (*domain.Product, error) {
	return repo.GetProduct(ctx, c.DB, sku)
}

// Products bulk-fetches catalog rows keyed by SKU.
func (c *DBCatalog) Products(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	return repo.GetProductsBySKUs(ctx, c.DB, skus)
}

// BatchCatalog memoizes lookups from an inner CatalogLookup. It is safe for
// concurrent use by the workers of a single batch. Negative results are
// cached as well; transient lookup errors are not, so a retry within the same
// batch can still succeed.
type BatchCatalog struct {
	inner CatalogLookup

	mu   sync.Mutex
	hits map[string]*domain.Product
	miss map[string]struct{}
}

// NewBatchCatalog wraps inner with a batch-scoped memo.
func NewBatchCatalog(inner CatalogLookup) *BatchCatalog {
	return &BatchCatalog{
		inner: inner,
		hits:  make(map[string]*domain.Product),
		miss:  make(map[string]struct{}),
	}
}

// Product returns the memoized product for sku, consulting the inner lookup
// on first sight.
func (c *BatchCatalog) Product(ctx context.Context, sku string) (*domain.Product, error) {
	c.mu.Lock()
	if p, ok := c.hits[sku]; ok {
		c.mu.Unlock()
		return p, nil
	}
	if _, ok := c.miss[sku]; ok {
		c.mu.Unlock()
		return nil, repo.ErrNotFound
	}
	c.mu.Unlock()

	p, err := c.inner.Product(ctx, sku)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.mu.Lock()
			c.miss[sku] = struct{}{}
			c.mu.Unlock()
		}
		return nil, err
	}

	c.mu.Lock()
	c.hits[sku] = p
	c.mu.Unlock()
	return p, nil
}

// Prime bulk-loads skus into the memo when the inner lookup supports bulk
// resolution, so batch workers hit the memo instead of issuing one query per
// SKU. SKUs absent from the bulk result are memoized as misses. A transient
// bulk error leaves the memo untouched; workers fall back to per-SKU lookups.
func (c *BatchCatalog) Prime(ctx context.Context, skus []string) error {
	if len(skus) == 0 {
		return nil
	}
	bulk, ok := c.inner.(BulkCatalogLookup)
	if !ok {
		return nil
	}

	found, err := bulk.Products(ctx, skus)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sku := range skus {
		if p, ok := found[sku]; ok {
			cp := p
			c.hits[sku] = &cp
			continue
		}
		c.miss[sku] = struct{}{}
	}
	return nil
}
