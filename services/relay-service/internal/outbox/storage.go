package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage opens transactions over the outbox table.
type Storage interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one outbox transaction. FetchPending must claim the rows it
// returns exclusively: a row claimed by one open transaction is invisible
// to FetchPending in any other, and is released on Commit or Rollback.
type Tx interface {
	InsertEvent(ctx context.Context, rec Record) error
	FetchPending(ctx context.Context, tenantID string, limit int) ([]Record, error)
	MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, ids []uuid.UUID, maxRetry int) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
