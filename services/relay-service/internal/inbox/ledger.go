// Package inbox is the consumer-side dedup ledger: at-least-once delivery
// becomes effectively-once processing when handlers check the ledger before
// acting and mark inside their own transaction.
package inbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jackc/pgx/v5"
)

// Record is one processed message, per tenant.
type Record struct {
	MessageID   string
	TenantID    string
	EventType   string
	Source      string
	PayloadHash string
	ProcessedAt time.Time
}

// Entry is the input to marking a message processed.
type Entry struct {
	MessageID string
	EventType string
	Source    string
	Payload   []byte
}

// Ledger persists processed-message marks. MarkProcessed is idempotent: a
// repeat call for the same (tenant, message) returns the existing record
// unchanged and writes nothing.
type Ledger interface {
	IsProcessed(ctx context.Context, tenantID, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, tenantID string, e Entry) (Record, error)
	// MarkProcessedTx marks inside the caller's transaction so "processed"
	// and the handler's own effects commit atomically.
	MarkProcessedTx(ctx context.Context, tx pgx.Tx, tenantID string, e Entry) (Record, error)
	CleanupOldRecords(ctx context.Context, tenantID string, olderThan time.Duration) (int64, error)
}

func hashPayload(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
