// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Order
// model. Updates are always column-scoped: the reconciliation engine writes
// only the fields its change detector flagged, so a partial update never
// clobbers columns written concurrently by other parts of the system.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/orderdesk/go-orders-backend/internal/domain"
)

// CreateOrder inserts a new order row.
func CreateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Create(o).Error
}

// GetOrder fetches an order by its upstream numeric id, or ErrNotFound.
func GetOrder(ctx context.Context, db *gorm.DB, id int64) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).Where("id = ?", id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrderByNumber fetches an order by its external order number, or ErrNotFound.
func GetOrderByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).Where("number = ?", number).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateOrderFields applies a column-scoped partial update to one order.
// Only the provided columns are written; UpdatedAt is bumped by GORM.
func UpdateOrderFields(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := db.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOrdersInRange returns orders whose order date falls inside the given
// bounds (either bound may be nil for open ranges), ordered by order date.
// This is the candidate scan used by the cache validator.
func ListOrdersInRange(ctx context.Context, db *gorm.DB, from, to *time.Time) ([]domain.Order, error) {
	var out []domain.Order
	q := db.WithContext(ctx).Model(&domain.Order{}).Order("order_date ASC, id ASC")
	if from != nil {
		q = q.Where("order_date >= ?", *from)
	}
	if to != nil {
		q = q.Where("order_date < ?", *to)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountOrders returns the number of orders inside the given date bounds.
func CountOrders(ctx context.Context, db *gorm.DB, from, to *time.Time) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.Order{})
	if from != nil {
		q = q.Where("order_date >= ?", *from)
	}
	if to != nil {
		q = q.Where("order_date < ?", *to)
	}
	err := q.Count(&total).Error
	return total, err
}

// ListOrdersPage returns one page of orders ordered by order date descending
// (newest first), for the listing endpoint.
func ListOrdersPage(ctx context.Context, db *gorm.DB, from, to *time.Time, offset, limit int) ([]domain.Order, error) {
	var out []domain.Order
	q := db.WithContext(ctx).Model(&domain.Order{}).Order("order_date DESC, id DESC")
	if from != nil {
		q = q.Where("order_date >= ?", *from)
	}
	if to != nil {
		q = q.Where("order_date < ?", *to)
	}
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}
