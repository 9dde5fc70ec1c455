// Package services – quantity and weight calculator
//
// This file implements the aggregation of an order's line items into
// per-SKU statistics. Kit products are flattened into their components,
// quantities and weights are summed per component SKU, and each aggregated
// SKU carries a snapshot of the product's per-warehouse stock balances with
// the virtual (non-fulfillable) warehouse removed.
//
// The calculator is deterministic: for the same line items and the same
// catalog state it produces byte-identical output. It never mutates catalog
// or order state, and catalog failures are non-fatal per item.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/repo"
)

// Aggregates is the result of flattening one order's line items.
type Aggregates struct {
	// Stats holds one entry per component SKU, sorted by SKU for stable output.
	Stats []domain.SKUStat
	// TotalQuantity is the sum of all effective (kit-expanded) quantities.
	TotalQuantity int
	// TotalWeightKg is the summed component weight converted from grams.
	TotalWeightKg float64
	// Warnings lists non-fatal problems (unknown SKUs, lookup errors).
	Warnings []string
}

// Calculator aggregates ordered quantities and weights per component SKU.
type Calculator struct {
	// Catalog resolves SKUs to product records.
	Catalog CatalogLookup
	// VirtualWarehouseID names the warehouse excluded from stock snapshots.
	VirtualWarehouseID string
	// Log receives per-item diagnostics.
	Log zerolog.Logger
}

// NewCalculator constructs a Calculator over the given catalog.
func NewCalculator(catalog CatalogLookup, virtualWarehouseID string, log zerolog.Logger) *Calculator {
	return &Calculator{
		Catalog:            catalog,
		VirtualWarehouseID: virtualWarehouseID,
		Log:                log,
	}
}

// running accumulates one component SKU while items are being folded in.
type running struct {
	name     string
	quantity int
	weightG  int
	stocks   map[string]float64
}

// Aggregate folds the line items into per-SKU aggregates. Line items whose
// product cannot be resolved are skipped with a warning; an order with zero
// resolvable items yields empty stats and zero totals.
func (c *Calculator) Aggregate(ctx context.Context, items []domain.LineItem) Aggregates {
	acc := make(map[string]*running)
	var warnings []string

	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		c.Log.Warn().Str("component", "calculator").Msg(msg)
		warnings = append(warnings, msg)
	}

	for _, it := range items {
		if it.SKU == "" || it.Quantity <= 0 {
			continue
		}
		p, err := c.Catalog.Product(ctx, it.SKU)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				warn("sku %q not found in catalog, item skipped", it.SKU)
			} else {
				warn("catalog lookup for sku %q failed: %v", it.SKU, err)
			}
			continue
		}

		if !p.IsKit() {
			c.add(acc, p, it.Quantity, it.Name)
			continue
		}

		// Kit: only the components contribute quantity and weight.
		set, err := domain.DecodeSetItems(p.SetItems)
		if err != nil {
			warn("kit %q has malformed set items, item skipped", it.SKU)
			continue
		}
		for _, member := range set {
			if member.SKU == "" || member.Quantity <= 0 {
				continue
			}
			comp, err := c.Catalog.Product(ctx, member.SKU)
			if err != nil {
				warn("kit %q component %q unresolved, component skipped", it.SKU, member.SKU)
				continue
			}
			c.add(acc, comp, it.Quantity*member.Quantity, "")
		}
	}

	out := Aggregates{Warnings: warnings}
	skus := make([]string, 0, len(acc))
	for sku := range acc {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	totalG := 0
	for _, sku := range skus {
		r := acc[sku]
		out.Stats = append(out.Stats, domain.SKUStat{
			SKU:      sku,
			Name:     r.name,
			Quantity: r.quantity,
			Stocks:   r.stocks,
		})
		out.TotalQuantity += r.quantity
		totalG += r.weightG
	}
	out.TotalWeightKg = float64(totalG) / 1000
	return out
}

// add merges quantity for one resolved non-kit product into the accumulator.
func (c *Calculator) add(acc map[string]*running, p *domain.Product, qty int, lineName string) {
	r, ok := acc[p.SKU]
	if !ok {
		name := p.Name
		if name == "" {
			name = lineName
		}
		r = &running{name: name, stocks: c.stockSnapshot(p)}
		acc[p.SKU] = r
	}
	r.quantity += qty
	r.weightG += qty * p.WeightGrams
}

// stockSnapshot copies the product's per-warehouse balances, dropping the
// virtual warehouse.
func (c *Calculator) stockSnapshot(p *domain.Product) map[string]float64 {
	balances, err := domain.DecodeStockBalances(p.StockBalances)
	if err != nil {
		c.Log.Warn().Str("component", "calculator").Str("sku", p.SKU).
			Msg("malformed stock balances, snapshot omitted")
		return map[string]float64{}
	}
	out := make(map[string]float64, len(balances))
	for wh, qty := range balances {
		if wh == c.VirtualWarehouseID {
			continue
		}
		out[wh] = qty
	}
	return out
}
