// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// append-only OrderHistory audit trail.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderdesk/go-orders-backend/internal/domain"
)

// AppendHistory inserts one audit entry, generating its id and timestamp.
func AppendHistory(ctx context.Context, db *gorm.DB, h *domain.OrderHistory) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(h).Error
}

// ListHistory returns an order's audit entries, newest first.
func ListHistory(ctx context.Context, db *gorm.DB, orderID int64, limit int) ([]domain.OrderHistory, error) {
	var out []domain.OrderHistory
	q := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// PruneHistory deletes audit entries created before the cutoff and reports
// how many rows were removed. This is the only path that ever deletes from
// the history table.
func PruneHistory(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.OrderHistory{})
	return res.RowsAffected, res.Error
}
