package inbox

import (
	"context"
	"testing"
	"time"
)

func TestMarkProcessed_Idempotent(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	entry := Entry{
		MessageID: "m-1",
		EventType: "order.created",
		Source:    "orders.events",
		Payload:   []byte(`{"total": 10}`),
	}
	first, err := ledger.MarkProcessed(ctx, "tenant-a", entry)
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if first.PayloadHash == "" {
		t.Fatal("payload hash must be recorded")
	}

	second, err := ledger.MarkProcessed(ctx, "tenant-a", entry)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if second != first {
		t.Fatalf("repeat mark must return the existing record: %+v vs %+v", second, first)
	}
	if ledger.Len() != 1 {
		t.Fatalf("expected exactly one record, got %d", ledger.Len())
	}

	processed, err := ledger.IsProcessed(ctx, "tenant-a", "m-1")
	if err != nil {
		t.Fatalf("is processed: %v", err)
	}
	if !processed {
		t.Fatal("marked message must report processed")
	}
}

func TestIsProcessed_TenantScoped(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	if _, err := ledger.MarkProcessed(ctx, "tenant-a", Entry{MessageID: "m-1", EventType: "e"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	processed, err := ledger.IsProcessed(ctx, "tenant-b", "m-1")
	if err != nil {
		t.Fatalf("is processed: %v", err)
	}
	if processed {
		t.Fatal("another tenant's mark must not leak")
	}
}

func TestCleanupOldRecords(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	if _, err := ledger.MarkProcessed(ctx, "tenant-a", Entry{MessageID: "old", EventType: "e"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	// Age the record past the retention window.
	ledger.mu.Lock()
	for key, rec := range ledger.records {
		rec.ProcessedAt = time.Now().UTC().Add(-48 * time.Hour)
		ledger.records[key] = rec
	}
	ledger.mu.Unlock()
	if _, err := ledger.MarkProcessed(ctx, "tenant-a", Entry{MessageID: "fresh", EventType: "e"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, err := ledger.MarkProcessed(ctx, "tenant-b", Entry{MessageID: "old", EventType: "e"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	ledger.mu.Lock()
	rec := ledger.records["tenant-b\x00old"]
	rec.ProcessedAt = time.Now().UTC().Add(-48 * time.Hour)
	ledger.records["tenant-b\x00old"] = rec
	ledger.mu.Unlock()

	removed, err := ledger.CleanupOldRecords(ctx, "tenant-a", 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed for tenant-a, got %d", removed)
	}

	processed, _ := ledger.IsProcessed(ctx, "tenant-a", "fresh")
	if !processed {
		t.Fatal("fresh record must survive cleanup")
	}
	processed, _ = ledger.IsProcessed(ctx, "tenant-b", "old")
	if !processed {
		t.Fatal("cleanup must be tenant-scoped")
	}
}
