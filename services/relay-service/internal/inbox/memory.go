package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// MemoryLedger is an in-process Ledger for tests and broker-less local
// runs. MarkProcessedTx ignores the transaction: an in-memory mark has no
// independent durability to coordinate.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]Record)}
}

func (l *MemoryLedger) IsProcessed(ctx context.Context, tenantID, messageID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[tenantID+"\x00"+messageID]
	return ok, nil
}

func (l *MemoryLedger) MarkProcessed(ctx context.Context, tenantID string, e Entry) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := tenantID + "\x00" + e.MessageID
	if existing, ok := l.records[key]; ok {
		return existing, nil
	}
	rec := Record{
		MessageID:   e.MessageID,
		TenantID:    tenantID,
		EventType:   e.EventType,
		Source:      e.Source,
		PayloadHash: hashPayload(e.Payload),
		ProcessedAt: time.Now().UTC(),
	}
	l.records[key] = rec
	return rec, nil
}

func (l *MemoryLedger) MarkProcessedTx(ctx context.Context, _ pgx.Tx, tenantID string, e Entry) (Record, error) {
	return l.MarkProcessed(ctx, tenantID, e)
}

func (l *MemoryLedger) CleanupOldRecords(ctx context.Context, tenantID string, olderThan time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var removed int64
	for key, rec := range l.records {
		if rec.TenantID == tenantID && rec.ProcessedAt.Before(cutoff) {
			delete(l.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored records.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
