package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func raise(buf *EventBuffer, eventType, payload string) {
	buf.Raise(Event{EventType: eventType, Payload: json.RawMessage(payload)})
}

func TestSessionCommit_WritesOneRecordPerEvent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	sess, err := BeginSession(ctx, store, "tenant-a")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	order := NewEventBuffer("order", "o-1")
	raise(order, "order.created", `{"total": 10}`)
	raise(order, "order.paid", `{"total": 10}`)
	invoice := NewEventBuffer("invoice", "i-1")
	raise(invoice, "invoice.issued", `{"amount": 10}`)

	sess.Track(order)
	sess.Track(invoice)

	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	recs := store.Snapshot()
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	// Tracking order, then raise order within one aggregate.
	wantTypes := []string{"order.created", "order.paid", "invoice.issued"}
	for i, rec := range recs {
		if rec.EventType != wantTypes[i] {
			t.Fatalf("record %d: expected %s, got %s", i, wantTypes[i], rec.EventType)
		}
		if rec.Status != StatusNew {
			t.Fatalf("record %d: expected NEW, got %s", i, rec.Status)
		}
		if rec.TenantID != "tenant-a" {
			t.Fatalf("record %d: expected tenant-a, got %s", i, rec.TenantID)
		}
		if rec.CreatedAt.IsZero() || rec.ID.String() == "00000000-0000-0000-0000-000000000000" {
			t.Fatalf("record %d: identity not assigned: %+v", i, rec)
		}
	}
	if recs[0].AggregateType != "order" || recs[0].AggregateID != "o-1" {
		t.Fatalf("provenance not carried: %+v", recs[0])
	}
}

func TestSessionCommit_InsertFailureRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	boom := errors.New("disk full")
	store.InsertErr = boom

	sess, err := BeginSession(ctx, store, "tenant-a")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	buf := NewEventBuffer("order", "o-1")
	raise(buf, "order.created", `{}`)
	sess.Track(buf)

	if err := sess.Commit(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected original insert error, got %v", err)
	}
	if n := len(store.Snapshot()); n != 0 {
		t.Fatalf("rollback must leave zero records, got %d", n)
	}
}

func TestSessionRollback_DiscardsEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	sess, err := BeginSession(ctx, store, "tenant-a")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	buf := NewEventBuffer("order", "o-1")
	raise(buf, "order.created", `{}`)
	sess.Track(buf)

	if err := sess.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if n := len(store.Snapshot()); n != 0 {
		t.Fatalf("expected zero records after rollback, got %d", n)
	}
}

func TestEventBuffer_DrainsOnce(t *testing.T) {
	buf := NewEventBuffer("order", "o-1")
	raise(buf, "order.created", `{}`)

	if got := len(buf.CollectEvents()); got != 1 {
		t.Fatalf("first drain: expected 1 event, got %d", got)
	}
	if got := len(buf.CollectEvents()); got != 0 {
		t.Fatalf("second drain must be empty, got %d", got)
	}
}
