// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the OrderCache
// model. Cache rows are replaced wholesale on conflict; there is no partial
// cache update by design.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orderdesk/go-orders-backend/internal/domain"
)

// GetCache fetches the cache row for one order number, or ErrNotFound.
func GetCache(ctx context.Context, db *gorm.DB, orderNumber string) (*domain.OrderCache, error) {
	var c domain.OrderCache
	err := db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCaches bulk-fetches cache rows for the given order numbers, keyed by
// order number. Missing rows are simply absent from the map.
func GetCaches(ctx context.Context, db *gorm.DB, orderNumbers []string) (map[string]domain.OrderCache, error) {
	out := make(map[string]domain.OrderCache, len(orderNumbers))
	if len(orderNumbers) == 0 {
		return out, nil
	}
	var rows []domain.OrderCache
	if err := db.WithContext(ctx).Where("order_number IN ?", orderNumbers).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.OrderNumber] = r
	}
	return out, nil
}

// UpsertCache inserts or fully replaces the cache row for one order.
func UpsertCache(ctx context.Context, db *gorm.DB, c *domain.OrderCache) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_number"}},
			UpdateAll: true,
		}).
		Create(c).Error
}

// DeleteCache removes the cache row for one order. Used by manual repair
// tooling; a missing row is not an error (absence is a valid cache state).
func DeleteCache(ctx context.Context, db *gorm.DB, orderNumber string) error {
	return db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		Delete(&domain.OrderCache{}).Error
}
