// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Product
// catalog. The sync engine treats the catalog as read-only; the upsert
// exists for catalog import tooling and tests.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orderdesk/go-orders-backend/internal/domain"
)

// GetProduct fetches one product by SKU, or ErrNotFound.
func GetProduct(ctx context.Context, db *gorm.DB, sku string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Where("sku = ?", sku).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProductsBySKUs bulk-fetches products keyed by SKU. Unknown SKUs are
// absent from the map; the caller applies its own missing-reference policy.
func GetProductsBySKUs(ctx context.Context, db *gorm.DB, skus []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	var rows []domain.Product
	if err := db.WithContext(ctx).Where("sku IN ?", skus).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.SKU] = r
	}
	return out, nil
}

// UpsertProduct inserts or replaces a catalog row.
func UpsertProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sku"}},
			UpdateAll: true,
		}).
		Create(p).Error
}
