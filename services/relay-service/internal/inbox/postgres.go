package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/eventrelay/libs/db"
)

// SQLLedger is the Postgres-backed ledger over inbox_events.
type SQLLedger struct {
	pool *db.Pool
}

func NewSQLLedger(pool *db.Pool) *SQLLedger {
	return &SQLLedger{pool: pool}
}

func (l *SQLLedger) IsProcessed(ctx context.Context, tenantID, messageID string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inbox_events WHERE tenant_id = $1 AND message_id = $2
		)
	`, tenantID, messageID).Scan(&exists)
	return exists, err
}

func (l *SQLLedger) MarkProcessed(ctx context.Context, tenantID string, e Entry) (Record, error) {
	return l.markProcessed(ctx, l.pool, tenantID, e)
}

func (l *SQLLedger) MarkProcessedTx(ctx context.Context, tx pgx.Tx, tenantID string, e Entry) (Record, error) {
	return l.markProcessed(ctx, tx, tenantID, e)
}

// querier is the common surface of the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (l *SQLLedger) markProcessed(ctx context.Context, q querier, tenantID string, e Entry) (Record, error) {
	rec := Record{
		MessageID:   e.MessageID,
		TenantID:    tenantID,
		EventType:   e.EventType,
		Source:      e.Source,
		PayloadHash: hashPayload(e.Payload),
	}
	err := q.QueryRow(ctx, `
		INSERT INTO inbox_events (tenant_id, message_id, event_type, source, payload_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, message_id) DO NOTHING
		RETURNING processed_at
	`, tenantID, e.MessageID, e.EventType, e.Source, rec.PayloadHash).Scan(&rec.ProcessedAt)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}

	// Conflict: the message was already marked. Return the existing row.
	err = q.QueryRow(ctx, `
		SELECT message_id, tenant_id, event_type, source, payload_hash, processed_at
		FROM inbox_events
		WHERE tenant_id = $1 AND message_id = $2
	`, tenantID, e.MessageID).Scan(&rec.MessageID, &rec.TenantID, &rec.EventType, &rec.Source, &rec.PayloadHash, &rec.ProcessedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (l *SQLLedger) CleanupOldRecords(ctx context.Context, tenantID string, olderThan time.Duration) (int64, error) {
	tag, err := l.pool.Exec(ctx, `
		DELETE FROM inbox_events
		WHERE tenant_id = $1 AND processed_at < $2
	`, tenantID, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
