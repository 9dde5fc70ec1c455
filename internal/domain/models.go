// Package domain defines the persistence models for orders, the derived
// per-order cache, the product catalog, and the order history audit trail.
// These types are mapped with GORM and form the core data layer of the
// order synchronization backend.
package domain

import (
	"time"
)

// Sync status values recorded on an order row after each reconciliation pass.
const (
	SyncStatusPending = "pending"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// HistorySourceSync tags audit entries written by the reconciliation engine.
const HistorySourceSync = "upstream-sync"

// Order mirrors one upstream order. The primary key is the upstream feed's
// own numeric identifier and is never reassigned; Number is the externally
// visible order number used for display and search.
//
// Items and RawData are serialized JSON blobs (TEXT columns). They must be
// canonicalized before any equality comparison: a raw byte comparison is not
// safe across re-serializations with different key ordering.
//
// Orders are never hard-deleted; rejected/returned orders keep their row and
// transition to a terminal status instead.
type Order struct {
	ID     int64  `json:"id"     gorm:"primaryKey;autoIncrement:false"`
	Number string `json:"number" gorm:"type:varchar(32);not null;uniqueIndex:ux_orders_number"`

	OrderDate      time.Time `json:"order_date"      gorm:"index:idx_orders_date"`
	Status         string    `json:"status"          gorm:"type:varchar(16);not null;index:idx_orders_status"`
	StatusText     string    `json:"status_text"     gorm:"type:varchar(128)"`
	TrackingNumber string    `json:"tracking_number" gorm:"type:varchar(64)"`

	CustomerName string  `json:"customer_name" gorm:"type:varchar(255)"`
	Phone        string  `json:"phone"         gorm:"type:varchar(32)"`
	Address      string  `json:"address"       gorm:"type:varchar(512)"`
	City         string  `json:"city"          gorm:"type:varchar(128)"`
	TotalPrice   float64 `json:"total_price"`
	Portions     int     `json:"portions"` // ordered-portion count; derived when upstream omits it

	ShippingMethod string `json:"shipping_method" gorm:"type:varchar(64)"`
	PaymentMethod  string `json:"payment_method"  gorm:"type:varchar(64)"`
	Channel        string `json:"channel"         gorm:"type:varchar(32)"`
	DiscountReason string `json:"discount_reason" gorm:"type:varchar(64)"`

	Items   string `json:"items"    gorm:"type:text"` // serialized []LineItem
	RawData string `json:"raw_data" gorm:"type:text"` // full upstream record, audit/recovery

	SyncedAt          time.Time `json:"synced_at"`
	SyncStatus        string    `json:"sync_status" gorm:"type:varchar(16);not null;default:'pending'"`
	SyncError         string    `json:"sync_error"  gorm:"type:text"`
	UpstreamUpdatedAt time.Time `json:"upstream_updated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index:idx_orders_updated"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }

// OrderCache is the denormalized projection of one order's line items: kits
// flattened into components, quantities and weights aggregated per SKU.
//
// It is a pure function of (Order.Items, catalog state at computation time);
// its absence is always a valid, repairable state and it is replaced
// wholesale, never patched. SourceItems records the canonical form of the
// line items the stats were derived from, so the validator can detect
// timestamp-only staleness without recomputing.
type OrderCache struct {
	OrderNumber string `json:"order_number" gorm:"type:varchar(32);primaryKey"`

	ProcessedItems string  `json:"processed_items" gorm:"type:text"` // serialized []SKUStat
	SourceItems    string  `json:"source_items"    gorm:"type:text"` // canonical []LineItem snapshot
	TotalQuantity  int     `json:"total_quantity"`
	TotalWeightKg  float64 `json:"total_weight_kg"`

	CacheUpdatedAt time.Time `json:"cache_updated_at"`
}

// TableName returns the database table name for OrderCache.
func (OrderCache) TableName() string { return "order_caches" }

// Product is catalog reference data, read-only from this subsystem's
// perspective. A product with a non-empty SetItems list is a kit: its
// fulfillment consumes the listed component products, and the kit itself
// contributes no weight or stock to order totals.
type Product struct {
	SKU         string `json:"sku"  gorm:"type:varchar(64);primaryKey"`
	Name        string `json:"name" gorm:"type:varchar(255);not null"`
	WeightGrams int    `json:"weight_grams"`

	SetItems      string `json:"set_items"      gorm:"type:text"` // serialized []SetItem; non-empty => kit
	StockBalances string `json:"stock_balances" gorm:"type:text"` // serialized map[warehouseID]float64

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// IsKit reports whether the product is a bundle of component products.
func (p Product) IsKit() bool {
	set, err := DecodeSetItems(p.SetItems)
	return err == nil && len(set) > 0
}

// OrderHistory is one append-only audit entry. A row is written whenever
// status, tracking number, or portion count changes during reconciliation.
// Rows are never mutated; entries older than the configured retention are
// pruned on a schedule.
type OrderHistory struct {
	ID         string    `json:"id"       gorm:"type:char(36);primaryKey"`
	OrderID    int64     `json:"order_id" gorm:"not null;index:idx_history_order"`
	Status     string    `json:"status"      gorm:"type:varchar(16);not null"`
	StatusText string    `json:"status_text" gorm:"type:varchar(128)"`
	Source     string    `json:"source"      gorm:"type:varchar(32);not null"`
	ActorID    string    `json:"actor_id,omitempty" gorm:"type:varchar(64)"`
	Note       string    `json:"note,omitempty"     gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"index:idx_history_created"`
}

// TableName returns the database table name for OrderHistory.
func (OrderHistory) TableName() string { return "orders_history" }
