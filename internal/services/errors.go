// Package services implements the business logic for order synchronization,
// product-stats cache maintenance, and order reads. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrOrderNotFound indicates that the requested order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrBadOrderID is returned when an upstream record carries neither a
	// usable numeric identifier nor an order number that parses as one.
	ErrBadOrderID = errors.New("order id is missing or not numeric")

	// ErrEmptyOrderNumber is returned when an operation that is keyed by
	// order number receives an empty one.
	ErrEmptyOrderNumber = errors.New("order number is empty")

	// ErrBadDateRange is returned when a validation scope has from after to.
	ErrBadDateRange = errors.New("date range start is after end")
)
