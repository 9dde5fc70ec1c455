// Package upstream defines the contract with the external order-taking
// platform that is the source of truth for new and changed orders, plus its
// HTTP implementation. The sync engine consumes only the Client interface;
// tests substitute fakes.
package upstream

import (
	"context"
	"encoding/json"
	"time"
)

// Item is one ordered position as delivered by the feed.
type Item struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name,omitempty"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

// Customer carries the buyer fields of a feed record.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
}

// Order is one raw order record as delivered by the upstream feed.
//
// ID is the platform's numeric identifier and is authoritative; Number is
// the externally visible order number. Some legacy records omit ID and the
// engine falls back to parsing Number, failing fast on non-numeric input.
//
// Raw preserves the record exactly as received, for audit and recovery.
type Order struct {
	ID             int64     `json:"id"`
	Number         string    `json:"number"`
	Date           time.Time `json:"date"`
	Status         string    `json:"status"`
	StatusText     string    `json:"status_text"`
	TrackingNumber string    `json:"tracking_number"`
	Customer       Customer  `json:"customer"`
	TotalPrice     float64   `json:"total_price"`
	Portions       int       `json:"portions"`
	ShippingMethod string    `json:"shipping_method"`
	PaymentMethod  string    `json:"payment_method"`
	Channel        string    `json:"channel"`
	DiscountReason string    `json:"discount_reason"`
	Items          []Item    `json:"items"`
	UpdatedAt      time.Time `json:"updated_at"`

	Raw json.RawMessage `json:"-"`
}

// Client is the narrow surface of the upstream platform consumed by this
// backend. Implementations must be safe for concurrent use; the platform
// rate-limits concurrent calls, which is why the reconciliation engine
// bounds its own parallelism.
type Client interface {
	// FetchOrdersSince returns every order created or modified at or after
	// the given instant.
	FetchOrdersSince(ctx context.Context, since time.Time) ([]Order, error)

	// UpdateStatus pushes a status change back to the platform and reports
	// whether the platform accepted it.
	UpdateStatus(ctx context.Context, orderNumber, status string) (bool, error)
}
