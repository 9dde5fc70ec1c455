package services

import (
	"testing"
	"time"

	"github.com/orderdesk/go-orders-backend/internal/domain"
)

func strPtr(s string) *string       { return &s }
func f64Ptr(f float64) *float64     { return &f }
func intPtr(i int) *int             { return &i }
func timePtr(t time.Time) *time.Time { return &t }

func storedOrder() *domain.Order {
	return &domain.Order{
		ID:             1001,
		Number:         "1001",
		OrderDate:      time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		Status:         "2",
		StatusText:     "confirmed",
		TrackingNumber: "TRK-1",
		CustomerName:   "Jane Roe",
		Phone:          "+300000000",
		TotalPrice:     42.5,
		Portions:       4,
		Items:          `[{"sku":"A","name":"soup","quantity":2,"price":10}]`,
		RawData:        `{"id":1001,"number":"1001"}`,
	}
}

func TestDetectChanges_AbsentFieldsNeverChange(t *testing.T) {
	changed, details := DetectChanges(storedOrder(), Incoming{}, time.UTC)
	if len(changed) != 0 || len(details) != 0 {
		t.Fatalf("empty incoming must yield no changes, got %v", changed)
	}
}

func TestDetectChanges_ScalarFields(t *testing.T) {
	in := Incoming{
		Status:     strPtr("3"),
		StatusText: strPtr("shipped"),
		Phone:      strPtr("+300000000"), // same value
		TotalPrice: f64Ptr(50),
		Portions:   intPtr(4), // same value
	}
	changed, details := DetectChanges(storedOrder(), in, time.UTC)

	want := map[string]bool{"status": true, "status_text": true, "total_price": true}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want keys %v", changed, want)
	}
	for _, f := range changed {
		if !want[f] {
			t.Errorf("unexpected changed field %q", f)
		}
	}
	if d := details["status"]; d.Old != "2" || d.New != "3" {
		t.Errorf("status detail = %+v, want 2 -> 3", d)
	}
	if d := details["total_price"]; d.Old != 42.5 || d.New != 50.0 {
		t.Errorf("total_price detail = %+v", d)
	}
}

func TestDetectChanges_DateDayGranularity(t *testing.T) {
	stored := storedOrder()

	// Same calendar day, different wall time: not a change.
	sameDay := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	if changed, _ := DetectChanges(stored, Incoming{OrderDate: timePtr(sameDay)}, time.UTC); len(changed) != 0 {
		t.Fatalf("same-day timestamp jitter flagged as change: %v", changed)
	}

	nextDay := time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
	changed, _ := DetectChanges(stored, Incoming{OrderDate: timePtr(nextDay)}, time.UTC)
	if len(changed) != 1 || changed[0] != "order_date" {
		t.Fatalf("day rollover must be a change, got %v", changed)
	}
}

func TestDetectChanges_DateBusinessTimeZone(t *testing.T) {
	athens := time.FixedZone("EET", 2*60*60)
	stored := storedOrder()
	stored.OrderDate = time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC) // Mar 11 in EET

	in := Incoming{OrderDate: timePtr(time.Date(2026, 3, 11, 8, 0, 0, 0, athens))}
	if changed, _ := DetectChanges(stored, in, athens); len(changed) != 0 {
		t.Fatalf("same business day across zones flagged as change: %v", changed)
	}
	if changed, _ := DetectChanges(stored, in, time.UTC); len(changed) != 1 {
		t.Fatal("in UTC the dates fall on different days and must be a change")
	}
}

func TestDetectChanges_BlobCanonicalEquality(t *testing.T) {
	stored := storedOrder()

	// Same structure, different key order and spacing: not a change.
	reordered := `[{"price":10,"quantity":2,"name":"soup", "sku":"A"}]`
	if changed, _ := DetectChanges(stored, Incoming{Items: strPtr(reordered)}, time.UTC); len(changed) != 0 {
		t.Fatalf("re-serialized identical items flagged as change: %v", changed)
	}

	different := `[{"sku":"A","name":"soup","quantity":3,"price":10}]`
	changed, details := DetectChanges(stored, Incoming{Items: strPtr(different)}, time.UTC)
	if len(changed) != 1 || changed[0] != "items" {
		t.Fatalf("structural item change not detected: %v", changed)
	}
	if details["items"].New != different {
		t.Errorf("items detail must carry the incoming blob")
	}
}

func TestDetectChanges_MalformedBlobFailsSafeTowardChanged(t *testing.T) {
	stored := storedOrder()
	stored.Items = `{not json`

	in := Incoming{Items: strPtr(`[{"sku":"A","quantity":2}]`)}
	if changed, _ := DetectChanges(stored, in, time.UTC); len(changed) != 1 {
		t.Fatal("unparseable stored blob must count as changed")
	}

	in = Incoming{RawData: strPtr(`{broken`)}
	if changed, _ := DetectChanges(storedOrder(), in, time.UTC); len(changed) != 1 {
		t.Fatal("unparseable incoming blob must count as changed")
	}
}

func TestDetectChanges_NilLocationDefaultsToLocal(t *testing.T) {
	stored := storedOrder()
	if changed, _ := DetectChanges(stored, Incoming{OrderDate: timePtr(stored.OrderDate)}, nil); len(changed) != 0 {
		t.Fatalf("identical date with nil location flagged as change: %v", changed)
	}
}
