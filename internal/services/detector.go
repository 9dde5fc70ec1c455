// Package services – change detector
//
// This file computes the minimal set of fields that differ between a stored
// order row and a partial incoming record. Scalar fields use plain equality,
// the order date is compared at day granularity in the business time zone,
// and the two serialized blob fields (line items, raw payload) are compared
// by canonical structural equality. A blob that cannot be parsed on either
// side counts as changed, so a broken row is re-synced rather than silently
// skipped.
//
// Detection is pure: it never touches storage and has no side effects.
package services

import (
	"time"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/utils"
)

// Incoming is a partial view of an upstream order record. Nil pointers mean
// the field was absent from the record and must never be treated as changed.
type Incoming struct {
	Status         *string
	StatusText     *string
	TrackingNumber *string
	CustomerName   *string
	Phone          *string
	Address        *string
	City           *string
	TotalPrice     *float64
	Portions       *int
	ShippingMethod *string
	PaymentMethod  *string
	Channel        *string
	DiscountReason *string
	OrderDate      *time.Time
	Items          *string
	RawData        *string
}

// FieldChange records the before and after values of one changed field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// DetectChanges compares stored against incoming and returns the changed
// column names together with per-field old/new values for audit logging.
// Field names double as the column keys used by the reconciler's partial
// update. loc is the business time zone for day-granularity date comparison;
// nil means the process-local zone.
func DetectChanges(stored *domain.Order, in Incoming, loc *time.Location) ([]string, map[string]FieldChange) {
	if loc == nil {
		loc = time.Local
	}

	var changed []string
	details := make(map[string]FieldChange)
	mark := func(name string, oldV, newV any) {
		changed = append(changed, name)
		details[name] = FieldChange{Old: oldV, New: newV}
	}
	str := func(name, oldV string, newV *string) {
		if newV != nil && *newV != oldV {
			mark(name, oldV, *newV)
		}
	}

	str("status", stored.Status, in.Status)
	str("status_text", stored.StatusText, in.StatusText)
	str("tracking_number", stored.TrackingNumber, in.TrackingNumber)
	str("customer_name", stored.CustomerName, in.CustomerName)
	str("phone", stored.Phone, in.Phone)
	str("address", stored.Address, in.Address)
	str("city", stored.City, in.City)
	str("shipping_method", stored.ShippingMethod, in.ShippingMethod)
	str("payment_method", stored.PaymentMethod, in.PaymentMethod)
	str("channel", stored.Channel, in.Channel)
	str("discount_reason", stored.DiscountReason, in.DiscountReason)

	if in.TotalPrice != nil && *in.TotalPrice != stored.TotalPrice {
		mark("total_price", stored.TotalPrice, *in.TotalPrice)
	}
	if in.Portions != nil && *in.Portions != stored.Portions {
		mark("portions", stored.Portions, *in.Portions)
	}

	if in.OrderDate != nil && !sameDay(stored.OrderDate, *in.OrderDate, loc) {
		mark("order_date", stored.OrderDate, *in.OrderDate)
	}

	if in.Items != nil {
		if eq, ok := utils.JSONStringsEqual(stored.Items, *in.Items); !ok || !eq {
			mark("items", stored.Items, *in.Items)
		}
	}
	if in.RawData != nil {
		if eq, ok := utils.JSONStringsEqual(stored.RawData, *in.RawData); !ok || !eq {
			mark("raw_data", stored.RawData, *in.RawData)
		}
	}

	return changed, details
}

// sameDay reports whether a and b fall on the same calendar day in loc.
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
