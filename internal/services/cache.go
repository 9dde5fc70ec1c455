// Package services – cache validator and repairer
//
// This file checks the derived product-stats cache against the order rows
// that own it and rebuilds only what actually diverged. Timestamp-only
// staleness is cheap to detect but produces false positives under the
// upstream's habit of re-saving records without changing them, so an order
// whose row is newer than its cache is rebuilt only when its line items
// differ structurally from the canonical snapshot the cache was derived
// from. Rebuilds run in the same chunked, bounded-concurrency style as
// reconciliation.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/utils"
)

// CacheScope limits validation to orders whose order date falls in the
// range. Nil bounds are open-ended; the zero value means all time.
type CacheScope struct {
	From *time.Time
	To   *time.Time
}

// ValidationResult summarizes one validation pass.
type ValidationResult struct {
	Processed               int  `json:"processed"`
	CacheHits               int  `json:"cache_hits"`
	CacheMisses             int  `json:"cache_misses"`
	StaleByDateButUnchanged int  `json:"stale_by_date_but_unchanged"`
	Updated                 int  `json:"updated"`
	Errors                  int  `json:"errors"`
	Canceled                bool `json:"canceled,omitempty"`
}

// CacheService validates and repairs the per-order product-stats cache.
type CacheService struct {
	DB      *gorm.DB
	Store   Store
	Catalog CatalogLookup
	// VirtualWarehouseID is excluded from rebuilt stock snapshots.
	VirtualWarehouseID string

	// BatchSize, Concurrency, and WavePause shape the rebuild waves.
	BatchSize   int
	Concurrency int
	WavePause   time.Duration

	Log zerolog.Logger
}

// NewCacheService constructs a CacheService with the given defaults.
func NewCacheService(db *gorm.DB, store Store, catalog CatalogLookup, virtualWarehouseID string, batchSize, concurrency int, wavePause time.Duration, log zerolog.Logger) *CacheService {
	if batchSize <= 0 {
		batchSize = 50
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &CacheService{
		DB:                 db,
		Store:              store,
		Catalog:            catalog,
		VirtualWarehouseID: virtualWarehouseID,
		BatchSize:          batchSize,
		Concurrency:        concurrency,
		WavePause:          wavePause,
		Log:                log,
	}
}

// Validate classifies every order in scope against its cache row and
// rebuilds the rows found missing or genuinely stale. force marks every
// candidate for rebuild regardless of classification.
func (s *CacheService) Validate(ctx context.Context, scope CacheScope, force bool) (ValidationResult, error) {
	var out ValidationResult

	if scope.From != nil && scope.To != nil && scope.From.After(*scope.To) {
		return out, ErrBadDateRange
	}

	orders, err := s.Store.ListOrdersInRange(ctx, s.DB, scope.From, scope.To)
	if err != nil {
		return out, err
	}
	numbers := make([]string, 0, len(orders))
	for _, o := range orders {
		numbers = append(numbers, o.Number)
	}
	caches, err := s.Store.GetCaches(ctx, s.DB, numbers)
	if err != nil {
		return out, err
	}

	var rebuild []domain.Order
	for _, o := range orders {
		out.Processed++
		cached, ok := caches[o.Number]
		if !ok {
			out.CacheMisses++
			rebuild = append(rebuild, o)
			cacheValidations.WithLabelValues("miss").Inc()
			continue
		}
		if force {
			rebuild = append(rebuild, o)
			cacheValidations.WithLabelValues("forced").Inc()
			continue
		}
		if !cached.CacheUpdatedAt.Before(o.UpdatedAt) {
			out.CacheHits++
			cacheValidations.WithLabelValues("hit").Inc()
			continue
		}
		// The row is newer than the cache. Rebuild only when the items
		// really differ from the snapshot the cache was derived from; an
		// unparseable side counts as differing.
		if eq, ok := utils.JSONStringsEqual(o.Items, cached.SourceItems); ok && eq {
			out.StaleByDateButUnchanged++
			cacheValidations.WithLabelValues("stale_unchanged").Inc()
			continue
		}
		cacheValidations.WithLabelValues("stale").Inc()
		rebuild = append(rebuild, o)
	}

	if len(rebuild) == 0 {
		return out, nil
	}

	updated, errs, canceled := s.rebuildAll(ctx, rebuild)
	out.Updated = updated
	out.Errors = errs
	out.Canceled = canceled

	s.Log.Info().
		Int("processed", out.Processed).
		Int("hits", out.CacheHits).
		Int("misses", out.CacheMisses).
		Int("stale_unchanged", out.StaleByDateButUnchanged).
		Int("updated", out.Updated).
		Int("errors", out.Errors).
		Bool("canceled", out.Canceled).
		Msg("cache validation done")
	return out, nil
}

// rebuildAll recomputes cache rows for the given orders in chunked waves.
func (s *CacheService) rebuildAll(ctx context.Context, orders []domain.Order) (updated, errs int, canceled bool) {
	calc := &Calculator{
		Catalog:            NewBatchCatalog(s.Catalog),
		VirtualWarehouseID: s.VirtualWarehouseID,
		Log:                s.Log,
	}

	var mu sync.Mutex
	var chunks [][]domain.Order
	for start := 0; start < len(orders); start += s.BatchSize {
		end := start + s.BatchSize
		if end > len(orders) {
			end = len(orders)
		}
		chunks = append(chunks, orders[start:end])
	}

	for start := 0; start < len(chunks); start += s.Concurrency {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		end := start + s.Concurrency
		if end > len(chunks) {
			end = len(chunks)
		}

		var wg sync.WaitGroup
		for _, chunk := range chunks[start:end] {
			wg.Add(1)
			go func(chunk []domain.Order) {
				defer wg.Done()
				var inner sync.WaitGroup
				for i := range chunk {
					inner.Add(1)
					go func(o domain.Order) {
						defer inner.Done()
						err := s.rebuildOne(ctx, calc, &o)
						mu.Lock()
						if err != nil {
							errs++
						} else {
							updated++
						}
						mu.Unlock()
					}(chunk[i])
				}
				inner.Wait()
			}(chunk)
		}
		wg.Wait()

		if end < len(chunks) && s.WavePause > 0 {
			select {
			case <-ctx.Done():
				canceled = true
			case <-time.After(s.WavePause):
			}
			if canceled {
				break
			}
		}
	}
	return updated, errs, canceled
}

// rebuildOne recomputes and overwrites the cache row for one order.
func (s *CacheService) rebuildOne(ctx context.Context, calc *Calculator, o *domain.Order) error {
	items, err := domain.DecodeLineItems(o.Items)
	if err != nil {
		s.Log.Warn().Str("order", o.Number).Err(err).Msg("malformed line items, cache built empty")
		items = nil
	}
	agg := calc.Aggregate(ctx, items)
	row, warns := buildCacheRow(o.Number, o.Items, agg, time.Now().UTC())
	for _, w := range warns {
		s.Log.Warn().Str("order", o.Number).Msg(w)
	}
	if err := s.Store.UpsertCache(ctx, s.DB, row); err != nil {
		cacheRebuilds.WithLabelValues("error").Inc()
		s.Log.Error().Str("order", o.Number).Err(err).Msg("cache rebuild failed")
		return err
	}
	cacheRebuilds.WithLabelValues("ok").Inc()
	return nil
}

// buildCacheRow assembles a cache row from precomputed aggregates. The
// canonical form of the source items is stored alongside the stats so a
// later validation can detect timestamp-only staleness without recomputing.
func buildCacheRow(number, itemsBlob string, agg Aggregates, now time.Time) (*domain.OrderCache, []string) {
	var warnings []string

	processed, err := domain.EncodeSKUStats(agg.Stats)
	if err != nil {
		warnings = append(warnings, "stats encode failed: "+err.Error())
		processed = "[]"
	}
	source, err := utils.CanonicalString(itemsBlob)
	if err != nil {
		warnings = append(warnings, "source items not canonical: "+err.Error())
		source = itemsBlob
	}

	return &domain.OrderCache{
		OrderNumber:    number,
		ProcessedItems: processed,
		SourceItems:    source,
		TotalQuantity:  agg.TotalQuantity,
		TotalWeightKg:  agg.TotalWeightKg,
		CacheUpdatedAt: now,
	}, warnings
}
