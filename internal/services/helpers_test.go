package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/orderdesk/go-orders-backend/internal/domain"
	"github.com/orderdesk/go-orders-backend/internal/repo"
)

// fakeCatalog serves products from a map and counts lookups.
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
	calls    int
	failWith error
}

func newFakeCatalog(products ...domain.Product) *fakeCatalog {
	m := make(map[string]domain.Product, len(products))
	for _, p := range products {
		m[p.SKU] = p
	}
	return &fakeCatalog{products: m}
}

func (f *fakeCatalog) Product(_ context.Context, sku string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	p, ok := f.products[sku]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := p
	return &cp, nil
}

// fakeStore is an in-memory Store that counts writes, so tests can assert
// that skip paths perform zero mutations.
type fakeStore struct {
	mu       sync.Mutex
	orders   map[int64]*domain.Order
	byNumber map[string]int64
	caches   map[string]domain.OrderCache
	history  []domain.OrderHistory

	createCalls   int
	updateCalls   int
	cacheWrites   int
	cacheDeletes  int
	historyWrites int

	failCreate map[int64]error
	failUpdate map[int64]error
	failCache  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:     make(map[int64]*domain.Order),
		byNumber:   make(map[string]int64),
		caches:     make(map[string]domain.OrderCache),
		failCreate: make(map[int64]error),
		failUpdate: make(map[int64]error),
		failCache:  make(map[string]error),
	}
}

func (f *fakeStore) GetOrder(_ context.Context, _ *gorm.DB, id int64) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrderByNumber(_ context.Context, _ *gorm.DB, number string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byNumber[number]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *f.orders[id]
	return &cp, nil
}

func (f *fakeStore) CreateOrder(_ context.Context, _ *gorm.DB, o *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if err := f.failCreate[o.ID]; err != nil {
		return err
	}
	if _, dup := f.orders[o.ID]; dup {
		return fmt.Errorf("duplicate order id %d", o.ID)
	}
	cp := *o
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.orders[o.ID] = &cp
	f.byNumber[o.Number] = o.ID
	return nil
}

func (f *fakeStore) UpdateOrderFields(_ context.Context, _ *gorm.DB, id int64, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(fields) == 0 {
		return nil
	}
	f.updateCalls++
	if err := f.failUpdate[id]; err != nil {
		return err
	}
	o, ok := f.orders[id]
	if !ok {
		return repo.ErrNotFound
	}
	for k, v := range fields {
		applyField(o, k, v)
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) ListOrdersInRange(_ context.Context, _ *gorm.DB, from, to *time.Time) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.orders {
		if from != nil && o.OrderDate.Before(*from) {
			continue
		}
		if to != nil && o.OrderDate.After(*to) {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeStore) GetCache(_ context.Context, _ *gorm.DB, orderNumber string) (*domain.OrderCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.caches[orderNumber]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (f *fakeStore) GetCaches(_ context.Context, _ *gorm.DB, orderNumbers []string) (map[string]domain.OrderCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.OrderCache)
	for _, n := range orderNumbers {
		if c, ok := f.caches[n]; ok {
			out[n] = c
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertCache(_ context.Context, _ *gorm.DB, c *domain.OrderCache) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cacheWrites++
	if err := f.failCache[c.OrderNumber]; err != nil {
		return err
	}
	f.caches[c.OrderNumber] = *c
	return nil
}

func (f *fakeStore) DeleteCache(_ context.Context, _ *gorm.DB, orderNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cacheDeletes++
	delete(f.caches, orderNumber)
	return nil
}

func (f *fakeStore) AppendHistory(_ context.Context, _ *gorm.DB, h *domain.OrderHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyWrites++
	f.history = append(f.history, *h)
	return nil
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls + f.updateCalls + f.cacheWrites + f.historyWrites
}

func applyField(o *domain.Order, k string, v any) {
	switch k {
	case "status":
		o.Status = v.(string)
	case "status_text":
		o.StatusText = v.(string)
	case "tracking_number":
		o.TrackingNumber = v.(string)
	case "customer_name":
		o.CustomerName = v.(string)
	case "phone":
		o.Phone = v.(string)
	case "address":
		o.Address = v.(string)
	case "city":
		o.City = v.(string)
	case "total_price":
		o.TotalPrice = v.(float64)
	case "portions":
		o.Portions = v.(int)
	case "shipping_method":
		o.ShippingMethod = v.(string)
	case "payment_method":
		o.PaymentMethod = v.(string)
	case "channel":
		o.Channel = v.(string)
	case "discount_reason":
		o.DiscountReason = v.(string)
	case "order_date":
		o.OrderDate = v.(time.Time)
	case "items":
		o.Items = v.(string)
	case "raw_data":
		o.RawData = v.(string)
	case "synced_at":
		o.SyncedAt = v.(time.Time)
	case "sync_status":
		o.SyncStatus = v.(string)
	case "sync_error":
		o.SyncError = v.(string)
	case "upstream_updated_at":
		o.UpstreamUpdatedAt = v.(time.Time)
	}
}

// mustEncodeItems is a test helper for building item blobs.
func mustEncodeItems(items []domain.LineItem) string {
	blob, err := domain.EncodeLineItems(items)
	if err != nil {
		panic(err)
	}
	return blob
}
