// Package domain – blob value types.
//
// This file defines the value types stored inside the serialized TEXT columns
// (Order.Items, OrderCache.ProcessedItems, Product.SetItems,
// Product.StockBalances) together with their encode/decode helpers. Encoding
// always goes through these helpers so every writer produces the same
// serialized form for the same value, which is what makes blob equality
// checks meaningful.
package domain

import (
	"encoding/json"
	"fmt"
)

// LineItem is one ordered position as stored in Order.Items.
type LineItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name,omitempty"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

// SKUStat is one aggregated row of OrderCache.ProcessedItems: the effective
// (kit-expanded) quantity for a component SKU plus a point-in-time snapshot
// of its per-warehouse stock.
type SKUStat struct {
	SKU      string             `json:"sku"`
	Name     string             `json:"name,omitempty"`
	Quantity int                `json:"quantity"`
	Stocks   map[string]float64 `json:"stocks,omitempty"`
}

// SetItem is one component reference inside a kit product's SetItems list.
type SetItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"` // components consumed per one kit
}

// EncodeLineItems serializes items for storage. A nil slice encodes as "[]"
// so the column never holds SQL-ish ambiguity between empty and absent.
func EncodeLineItems(items []LineItem) (string, error) {
	if items == nil {
		items = []LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode line items: %w", err)
	}
	return string(b), nil
}

// DecodeLineItems parses a stored Order.Items blob. An empty string decodes
// to an empty slice; malformed JSON is returned as an error for the caller
// to apply its fail-safe policy.
func DecodeLineItems(blob string) ([]LineItem, error) {
	if blob == "" {
		return []LineItem{}, nil
	}
	var items []LineItem
	if err := json.Unmarshal([]byte(blob), &items); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	return items, nil
}

// EncodeSKUStats serializes aggregated per-SKU statistics for storage.
func EncodeSKUStats(stats []SKUStat) (string, error) {
	if stats == nil {
		stats = []SKUStat{}
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("encode sku stats: %w", err)
	}
	return string(b), nil
}

// DecodeSKUStats parses a stored OrderCache.ProcessedItems blob.
func DecodeSKUStats(blob string) ([]SKUStat, error) {
	if blob == "" {
		return []SKUStat{}, nil
	}
	var stats []SKUStat
	if err := json.Unmarshal([]byte(blob), &stats); err != nil {
		return nil, fmt.Errorf("decode sku stats: %w", err)
	}
	return stats, nil
}

// DecodeSetItems parses a Product.SetItems blob. Empty means "not a kit".
func DecodeSetItems(blob string) ([]SetItem, error) {
	if blob == "" {
		return nil, nil
	}
	var set []SetItem
	if err := json.Unmarshal([]byte(blob), &set); err != nil {
		return nil, fmt.Errorf("decode set items: %w", err)
	}
	return set, nil
}

// EncodeSetItems serializes a kit component list (used by seeds and tests).
func EncodeSetItems(set []SetItem) (string, error) {
	b, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("encode set items: %w", err)
	}
	return string(b), nil
}

// DecodeStockBalances parses a Product.StockBalances blob into a
// warehouse-id → quantity map. Empty means no recorded balances.
func DecodeStockBalances(blob string) (map[string]float64, error) {
	if blob == "" {
		return map[string]float64{}, nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return nil, fmt.Errorf("decode stock balances: %w", err)
	}
	return m, nil
}

// EncodeStockBalances serializes a per-warehouse stock map.
func EncodeStockBalances(m map[string]float64) (string, error) {
	if m == nil {
		m = map[string]float64{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode stock balances: %w", err)
	}
	return string(b), nil
}
