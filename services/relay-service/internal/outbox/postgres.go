package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/eventrelay/libs/db"
)

// SQLStorage is the Postgres-backed outbox store.
type SQLStorage struct {
	pool *db.Pool
}

func NewSQLStorage(pool *db.Pool) *SQLStorage {
	return &SQLStorage{pool: pool}
}

func (s *SQLStorage) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &SQLTx{Tx: tx}, nil
}

// SQLTx wraps a pgx transaction with the outbox operations. The embedded
// pgx.Tx stays available so business writes land in the same transaction
// as the captured events.
type SQLTx struct {
	pgx.Tx
}

func (t *SQLTx) InsertEvent(ctx context.Context, rec Record) error {
	_, err := t.Exec(ctx, `
		INSERT INTO outbox_events (id, tenant_id, aggregate_type, aggregate_id, event_type, payload, routing_key, routing_config, status, retry_cnt, traceparent, tracestate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, rec.ID.String(), rec.TenantID, rec.AggregateType, rec.AggregateID, rec.EventType,
		[]byte(rec.Payload), rec.RoutingKey, nullableJSON(rec.RoutingConfig), string(rec.Status),
		rec.RetryCount, rec.Traceparent, rec.Tracestate, rec.CreatedAt)
	return err
}

func (t *SQLTx) FetchPending(ctx context.Context, tenantID string, limit int) ([]Record, error) {
	rows, err := t.Query(ctx, `
		SELECT id, seq, tenant_id, aggregate_type, aggregate_id, event_type, payload, routing_key, routing_config, status, retry_cnt, traceparent, tracestate, created_at, published_at
		FROM outbox_events
		WHERE tenant_id = $1 AND status = 'NEW'
		ORDER BY created_at, seq
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var id string
		var status string
		if err := rows.Scan(&id, &rec.Seq, &rec.TenantID, &rec.AggregateType, &rec.AggregateID,
			&rec.EventType, &rec.Payload, &rec.RoutingKey, &rec.RoutingConfig, &status,
			&rec.RetryCount, &rec.Traceparent, &rec.Tracestate, &rec.CreatedAt, &rec.PublishedAt); err != nil {
			return nil, err
		}
		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (t *SQLTx) MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'SENT', published_at = $2
		WHERE id = ANY($1::uuid[]) AND status = 'NEW'
	`, uuidStrings(ids), at)
	return err
}

func (t *SQLTx) MarkFailed(ctx context.Context, ids []uuid.UUID, maxRetry int) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.Exec(ctx, `
		UPDATE outbox_events
		SET retry_cnt = retry_cnt + 1,
		    status = CASE WHEN retry_cnt + 1 >= $2 THEN 'ERR' ELSE status END
		WHERE id = ANY($1::uuid[]) AND status = 'NEW'
	`, uuidStrings(ids), maxRetry)
	return err
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// nullableJSON maps an absent document to SQL NULL instead of empty bytes.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
