package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/eventrelay/libs/otel"
)

// Session is a per-invocation capture scope around one database
// transaction. Aggregates are tracked explicitly; at Commit their buffered
// events are written as outbox records through the same transaction as any
// business writes done via Tx(), so the business change and its events
// commit or roll back as one unit.
type Session struct {
	tx       Tx
	tenantID string
	tracked  []EventSource
	done     bool
}

func BeginSession(ctx context.Context, storage Storage, tenantID string) (*Session, error) {
	tx, err := storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{tx: tx, tenantID: tenantID}, nil
}

// Tx exposes the underlying transaction for business writes.
// For SQLStorage it is a *SQLTx, so callers can Exec/Query on it directly.
func (s *Session) Tx() Tx {
	return s.tx
}

func (s *Session) Track(src EventSource) {
	s.tracked = append(s.tracked, src)
}

// CollectEvents drains every tracked aggregate's event buffer, preserving
// tracking order and, within one aggregate, raise order. Each event also
// carries its source's identity for provenance.
func (s *Session) CollectEvents() []CapturedEvent {
	var out []CapturedEvent
	for _, src := range s.tracked {
		for _, evt := range src.CollectEvents() {
			out = append(out, CapturedEvent{
				Event:         evt,
				AggregateType: src.AggregateType(),
				AggregateID:   src.AggregateID(),
			})
		}
	}
	return out
}

// CapturedEvent is a drained event paired with its source's identity.
type CapturedEvent struct {
	Event         Event
	AggregateType string
	AggregateID   string
}

// Commit writes every collected event as a NEW outbox record, then commits
// the transaction. Any failure rolls the whole transaction back and the
// original error is returned: the business write never commits without its
// events, and no event row outlives a rolled-back business write.
func (s *Session) Commit(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true

	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	now := time.Now().UTC()
	for _, ce := range s.CollectEvents() {
		rec := Record{
			ID:            uuid.New(),
			TenantID:      s.tenantID,
			AggregateType: ce.AggregateType,
			AggregateID:   ce.AggregateID,
			EventType:     ce.Event.EventType,
			Payload:       ce.Event.Payload,
			RoutingKey:    ce.Event.RoutingKey,
			RoutingConfig: ce.Event.RoutingConfig,
			Status:        StatusNew,
			Traceparent:   traceparent,
			Tracestate:    tracestate,
			CreatedAt:     now,
		}
		if err := s.tx.InsertEvent(ctx, rec); err != nil {
			_ = s.tx.Rollback(ctx)
			return err
		}
	}
	if err := s.tx.Commit(ctx); err != nil {
		_ = s.tx.Rollback(ctx)
		return err
	}
	return nil
}

func (s *Session) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Rollback(ctx)
}
