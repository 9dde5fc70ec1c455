// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used by the
// HTTP layer for conditional responses and by health/diagnostic endpoints.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/orderdesk/go-orders-backend/internal/domain"
)

// OrdersStats returns the total number of order rows and the greatest
// UpdatedAt among them. When the table is empty the count is 0 and
// maxUpdatedAt is nil.
func OrdersStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Order{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest updated_at via ORDER BY (avoid MAX() -> TEXT in SQLite).
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// CacheStats returns the number of cache rows and the oldest
// CacheUpdatedAt, a cheap staleness signal for diagnostics.
func CacheStats(ctx context.Context, db *gorm.DB) (count int64, oldestUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.OrderCache{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CacheUpdatedAt time.Time
	}
	if err = q.Select("cache_updated_at").Order("cache_updated_at ASC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CacheUpdatedAt, nil
}
