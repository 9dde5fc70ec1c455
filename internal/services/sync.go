// Package services – batch reconciliation engine
//
// This file orchestrates create-vs-update decisions over batches of upstream
// order records. The batch is split into fixed-size chunks, chunks are
// processed in bounded concurrency waves with a short pause between waves,
// and every order is isolated: a failure on one order is reported in its
// per-order result and never aborts its siblings.
//
// Per order the flow is: resolve the numeric id, fetch the stored row,
// create it when missing, otherwise diff via the change detector and apply
// only the changed columns. The order row write always completes before the
// cache recomputation for that order is attempted, and cache writes are
// best-effort.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/repo"
	"github.com/orderdesk/go-orders-backend/internal/upstream"
)

// Per-order terminal actions of one reconciliation pass.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
	ActionError   = "error"
)

// ReconcileOptions tunes one reconcile call. Zero values fall back to the
// service defaults.
type ReconcileOptions struct {
	// BatchSize is the chunk size the input is split into.
	BatchSize int
	// Concurrency is the number of chunks processed in one wave.
	Concurrency int
	// WavePause is the pause inserted between concurrency waves.
	WavePause time.Duration
	// ForceUpdate bypasses the skip decision for unchanged orders. Field
	// differences are still computed and logged.
	ForceUpdate bool
}

// OrderResult is the terminal outcome for one order of a batch.
type OrderResult struct {
	OrderID       int64    `json:"order_id"`
	Number        string   `json:"number"`
	Action        string   `json:"action"`
	ChangedFields []string `json:"changed_fields,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// BatchResult summarizes one reconcile call. Callers must not assume
// all-or-nothing semantics: the summary is returned even under partial
// failure, and Canceled marks a batch cut short by context cancellation
// with the results so far.
type BatchResult struct {
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Errors   int           `json:"errors"`
	Canceled bool          `json:"canceled,omitempty"`
	Results  []OrderResult `json:"results"`
}

// SyncService reconciles upstream order batches into the local store.
type SyncService struct {
	// DB is the GORM handle passed through to the store.
	DB *gorm.DB
	// Store is the persistence contract.
	Store Store
	// Catalog resolves SKUs. Each batch wraps it in a batch-scoped memo.
	Catalog CatalogLookup
	// Loc is the business time zone for day-granularity date comparison.
	Loc *time.Location
	// VirtualWarehouseID is excluded from stock snapshots.
	VirtualWarehouseID string

	// BatchSize, Concurrency, and WavePause are the defaults applied when
	// ReconcileOptions leaves them unset.
	BatchSize   int
	Concurrency int
	WavePause   time.Duration

	Log zerolog.Logger
}

// NewSyncService constructs a SyncService with the given defaults.
func NewSyncService(db *gorm.DB, store Store, catalog CatalogLookup, loc *time.Location, virtualWarehouseID string, batchSize, concurrency int, wavePause time.Duration, log zerolog.Logger) *SyncService {
	if batchSize <= 0 {
		batchSize = 50
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &SyncService{
		DB:                 db,
		Store:              store,
		Catalog:            catalog,
		Loc:                loc,
		VirtualWarehouseID: virtualWarehouseID,
		BatchSize:          batchSize,
		Concurrency:        concurrency,
		WavePause:          wavePause,
		Log:                log,
	}
}

// Reconcile brings the local store in line with the given upstream batch and
// returns the per-order outcomes. Re-running it with the same input against
// an already-converged store yields all-skipped with zero mutations.
func (s *SyncService) Reconcile(ctx context.Context, batch []upstream.Order, opts ReconcileOptions) BatchResult {
	timer := prometheus.NewTimer(reconcileBatchSeconds)
	defer timer.ObserveDuration()

	size := opts.BatchSize
	if size <= 0 {
		size = s.BatchSize
	}
	conc := opts.Concurrency
	if conc <= 0 {
		conc = s.Concurrency
	}
	pause := opts.WavePause
	if pause <= 0 {
		pause = s.WavePause
	}

	// A batch-scoped memo so a SKU repeated across orders is resolved once.
	memo := NewBatchCatalog(s.Catalog)
	// Best effort: preload every top-level SKU in one query. Kit components
	// surface during flattening and are resolved lazily.
	if err := memo.Prime(ctx, batchSKUs(batch)); err != nil {
		s.Log.Warn().Err(err).Msg("catalog preload failed; falling back to per-SKU lookups")
	}
	calc := &Calculator{
		Catalog:            memo,
		VirtualWarehouseID: s.VirtualWarehouseID,
		Log:                s.Log,
	}

	chunks := chunkOrders(batch, size)
	out := BatchResult{Results: make([]OrderResult, 0, len(batch))}
	var mu sync.Mutex

	for start := 0; start < len(chunks); start += conc {
		if ctx.Err() != nil {
			out.Canceled = true
			break
		}
		end := start + conc
		if end > len(chunks) {
			end = len(chunks)
		}

		var wg sync.WaitGroup
		for _, chunk := range chunks[start:end] {
			wg.Add(1)
			go func(chunk []upstream.Order) {
				defer wg.Done()
				var inner sync.WaitGroup
				for i := range chunk {
					inner.Add(1)
					go func(raw upstream.Order) {
						defer inner.Done()
						res := s.syncOne(ctx, calc, raw, opts.ForceUpdate)
						mu.Lock()
						out.Results = append(out.Results, res)
						mu.Unlock()
					}(chunk[i])
				}
				inner.Wait()
			}(chunk)
		}
		wg.Wait()

		if end < len(chunks) && pause > 0 {
			select {
			case <-ctx.Done():
				out.Canceled = true
			case <-time.After(pause):
			}
			if out.Canceled {
				break
			}
		}
	}

	for _, r := range out.Results {
		switch r.Action {
		case ActionCreated:
			out.Created++
		case ActionUpdated:
			out.Updated++
		case ActionSkipped:
			out.Skipped++
		default:
			out.Errors++
		}
		ordersReconciled.WithLabelValues(r.Action).Inc()
	}

	s.Log.Info().
		Int("total", len(batch)).
		Int("created", out.Created).
		Int("updated", out.Updated).
		Int("skipped", out.Skipped).
		Int("errors", out.Errors).
		Bool("canceled", out.Canceled).
		Msg("reconcile batch done")
	return out
}

// syncOne drives one order through the per-order state machine.
func (s *SyncService) syncOne(ctx context.Context, calc *Calculator, raw upstream.Order, force bool) OrderResult {
	res := OrderResult{Number: raw.Number}

	id, err := resolveOrderID(raw)
	if err != nil {
		res.Action = ActionError
		res.Error = err.Error()
		return res
	}
	res.OrderID = id

	stored, err := s.Store.GetOrder(ctx, s.DB, id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return s.createOrder(ctx, calc, id, raw, res)
	case err != nil:
		res.Action = ActionError
		res.Error = err.Error()
		return res
	default:
		return s.updateOrder(ctx, calc, stored, raw, force, res)
	}
}

// resolveOrderID returns the authoritative numeric id of a feed record,
// falling back to the order number only when it parses cleanly.
func resolveOrderID(raw upstream.Order) (int64, error) {
	if raw.ID > 0 {
		return raw.ID, nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw.Number), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadOrderID
	}
	return id, nil
}

func (s *SyncService) createOrder(ctx context.Context, calc *Calculator, id int64, raw upstream.Order, res OrderResult) OrderResult {
	now := time.Now().UTC()

	itemsBlob, err := domain.EncodeLineItems(lineItems(raw.Items))
	if err != nil {
		res.Action = ActionError
		res.Error = err.Error()
		return res
	}
	rawBlob := string(raw.Raw)
	if rawBlob == "" {
		b, err := json.Marshal(raw)
		if err != nil {
			res.Action = ActionError
			res.Error = err.Error()
			return res
		}
		rawBlob = string(b)
	}

	agg := calc.Aggregate(ctx, lineItems(raw.Items))
	res.Warnings = append(res.Warnings, agg.Warnings...)

	portions := raw.Portions
	if portions <= 0 {
		portions = agg.TotalQuantity
	}

	row := &domain.Order{
		ID:                id,
		Number:            raw.Number,
		OrderDate:         raw.Date,
		Status:            raw.Status,
		StatusText:        raw.StatusText,
		TrackingNumber:    raw.TrackingNumber,
		CustomerName:      titleCase(raw.Customer.Name),
		Phone:             strings.TrimSpace(raw.Customer.Phone),
		Address:           strings.TrimSpace(raw.Customer.Address),
		City:              strings.TrimSpace(raw.Customer.City),
		TotalPrice:        raw.TotalPrice,
		Portions:          portions,
		ShippingMethod:    raw.ShippingMethod,
		PaymentMethod:     raw.PaymentMethod,
		Channel:           raw.Channel,
		DiscountReason:    raw.DiscountReason,
		Items:             itemsBlob,
		RawData:           rawBlob,
		SyncedAt:          now,
		SyncStatus:        domain.SyncStatusSuccess,
		UpstreamUpdatedAt: raw.UpdatedAt,
	}

	if err := s.Store.CreateOrder(ctx, s.DB, row); err != nil {
		res.Action = ActionError
		res.Error = err.Error()
		return res
	}

	if err := s.Store.AppendHistory(ctx, s.DB, &domain.OrderHistory{
		OrderID:    id,
		Status:     raw.Status,
		StatusText: raw.StatusText,
		Source:     domain.HistorySourceSync,
		Note:       "order created from upstream feed",
	}); err != nil {
		res.Warnings = append(res.Warnings, "history append failed: "+err.Error())
	}

	// Cache writes are best-effort and never roll back the order write.
	cacheRow, cacheWarns := buildCacheRow(row.Number, row.Items, agg, now)
	res.Warnings = append(res.Warnings, cacheWarns...)
	if err := s.Store.UpsertCache(ctx, s.DB, cacheRow); err != nil {
		s.Log.Warn().Int64("order_id", id).Err(err).Msg("cache write failed after create")
		res.Warnings = append(res.Warnings, "cache write failed: "+err.Error())
	}

	res.Action = ActionCreated
	return res
}

func (s *SyncService) updateOrder(ctx context.Context, calc *Calculator, stored *domain.Order, raw upstream.Order, force bool, res OrderResult) OrderResult {
	in, err := incomingFromFeed(raw)
	if err != nil {
		res.Action = ActionError
		res.Error = err.Error()
		return res
	}

	changed, details := DetectChanges(stored, in, s.Loc)
	res.ChangedFields = changed
	if len(changed) == 0 && !force {
		res.Action = ActionSkipped
		return res
	}

	now := time.Now().UTC()
	fields := make(map[string]any, len(changed)+4)
	for _, name := range changed {
		fields[name] = details[name].New
	}
	fields["synced_at"] = now
	fields["sync_status"] = domain.SyncStatusSuccess
	fields["sync_error"] = ""
	if !raw.UpdatedAt.IsZero() {
		fields["upstream_updated_at"] = raw.UpdatedAt
	}

	if err := s.Store.UpdateOrderFields(ctx, s.DB, stored.ID, fields); err != nil {
		// Best-effort bookkeeping so the row carries the failure for the
		// next run; a second failure here is ignored.
		_ = s.Store.UpdateOrderFields(ctx, s.DB, stored.ID, map[string]any{
			"sync_status": domain.SyncStatusError,
			"sync_error":  err.Error(),
		})
		res.Action = ActionError
		res.Error = err.Error()
		return res
	}

	if meaningfulChange(changed) {
		status, statusText := stored.Status, stored.StatusText
		if in.Status != nil {
			status = *in.Status
		}
		if in.StatusText != nil {
			statusText = *in.StatusText
		}
		if err := s.Store.AppendHistory(ctx, s.DB, &domain.OrderHistory{
			OrderID:    stored.ID,
			Status:     status,
			StatusText: statusText,
			Source:     domain.HistorySourceSync,
			Note:       "changed: " + strings.Join(changed, ", "),
		}); err != nil {
			res.Warnings = append(res.Warnings, "history append failed: "+err.Error())
		}
	}

	if itemsChanged(changed) || force {
		items := stored.Items
		if in.Items != nil {
			items = *in.Items
		}
		agg := calc.Aggregate(ctx, decodeItemsLenient(items, &res))
		cacheRow, cacheWarns := buildCacheRow(stored.Number, items, agg, now)
		res.Warnings = append(res.Warnings, cacheWarns...)
		res.Warnings = append(res.Warnings, agg.Warnings...)
		if err := s.Store.UpsertCache(ctx, s.DB, cacheRow); err != nil {
			s.Log.Warn().Int64("order_id", stored.ID).Err(err).Msg("cache write failed after update")
			res.Warnings = append(res.Warnings, "cache write failed: "+err.Error())
		}
	}

	if force && len(changed) == 0 {
		s.Log.Info().Int64("order_id", stored.ID).Msg("force update with no field differences")
	} else {
		s.Log.Debug().Int64("order_id", stored.ID).Interface("changes", details).Msg("order updated")
	}
	res.Action = ActionUpdated
	return res
}

// incomingFromFeed maps a feed record to the detector's partial view. The
// feed uses empty strings and zero numbers for fields it did not provide, so
// those map to absent rather than clobbering stored values. Customer fields
// get the same normalization the create path applies, otherwise an identical
// record would diff forever against the normalized row.
func incomingFromFeed(raw upstream.Order) (Incoming, error) {
	in := Incoming{
		Status:         optStr(raw.Status),
		StatusText:     optStr(raw.StatusText),
		TrackingNumber: optStr(raw.TrackingNumber),
		CustomerName:   optStr(titleCase(raw.Customer.Name)),
		Phone:          optStr(strings.TrimSpace(raw.Customer.Phone)),
		Address:        optStr(strings.TrimSpace(raw.Customer.Address)),
		City:           optStr(strings.TrimSpace(raw.Customer.City)),
		ShippingMethod: optStr(raw.ShippingMethod),
		PaymentMethod:  optStr(raw.PaymentMethod),
		Channel:        optStr(raw.Channel),
		DiscountReason: optStr(raw.DiscountReason),
	}
	if raw.TotalPrice != 0 {
		in.TotalPrice = &raw.TotalPrice
	}
	if raw.Portions > 0 {
		in.Portions = &raw.Portions
	}
	if !raw.Date.IsZero() {
		d := raw.Date
		in.OrderDate = &d
	}
	if raw.Items != nil {
		blob, err := domain.EncodeLineItems(lineItems(raw.Items))
		if err != nil {
			return in, err
		}
		in.Items = &blob
	}
	if len(raw.Raw) > 0 {
		rd := string(raw.Raw)
		in.RawData = &rd
	}
	return in, nil
}

func optStr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// meaningfulChange reports whether the change set warrants a history entry.
func meaningfulChange(changed []string) bool {
	for _, f := range changed {
		switch f {
		case "status", "tracking_number", "portions":
			return true
		}
	}
	return false
}

func itemsChanged(changed []string) bool {
	for _, f := range changed {
		if f == "items" {
			return true
		}
	}
	return false
}

// decodeItemsLenient decodes a line-item blob, degrading to empty items with
// a per-order warning when the blob is malformed.
func decodeItemsLenient(blob string, res *OrderResult) []domain.LineItem {
	items, err := domain.DecodeLineItems(blob)
	if err != nil {
		res.Warnings = append(res.Warnings, "malformed line items: "+err.Error())
		return nil
	}
	return items
}

// lineItems converts feed items to the stored line-item shape.
func lineItems(items []upstream.Item) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.LineItem{
			SKU:      it.SKU,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}
	return out
}

// batchSKUs collects the distinct line-item SKUs across the batch.
func batchSKUs(batch []upstream.Order) []string {
	seen := make(map[string]struct{})
	var skus []string
	for _, o := range batch {
		for _, it := range o.Items {
			if it.SKU == "" {
				continue
			}
			if _, ok := seen[it.SKU]; ok {
				continue
			}
			seen[it.SKU] = struct{}{}
			skus = append(skus, it.SKU)
		}
	}
	return skus
}

// chunkOrders splits the batch into fixed-size chunks.
func chunkOrders(batch []upstream.Order, size int) [][]upstream.Order {
	if size <= 0 {
		size = len(batch)
	}
	var chunks [][]upstream.Order
	for start := 0; start < len(batch); start += size {
		end := start + size
		if end > len(batch) {
			end = len(batch)
		}
		chunks = append(chunks, batch[start:end])
	}
	return chunks
}

// titleCase normalizes a customer name to title case on first sight.
// A fresh Caser per call because cases.Caser is not safe for concurrent use.
func titleCase(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.Und).String(strings.ToLower(name))
}
