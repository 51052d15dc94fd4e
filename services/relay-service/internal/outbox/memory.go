package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps outbox records in process memory. It emulates the
// claim semantics of a skip-locked read: rows held by one open transaction
// are invisible to FetchPending in any other until that transaction ends.
// Used by tests and broker-less local runs.
type MemoryStorage struct {
	mu      sync.Mutex
	seq     int64
	records []*Record
	claimed map[uuid.UUID]bool

	// InsertErr, when set, makes every InsertEvent fail. Lets tests
	// verify that a failed capture commit leaves no partial state.
	InsertErr error
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{claimed: make(map[uuid.UUID]bool)}
}

func (s *MemoryStorage) Begin(ctx context.Context) (Tx, error) {
	return &memoryTx{store: s, sent: make(map[uuid.UUID]time.Time)}, nil
}

// Get returns a copy of the record with the given id.
func (s *MemoryStorage) Get(id uuid.UUID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return *r, true
		}
	}
	return Record{}, false
}

// Snapshot returns copies of all records in insertion order.
func (s *MemoryStorage) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}

type memoryTx struct {
	store    *MemoryStorage
	inserts  []Record
	claimed  []uuid.UUID
	sent     map[uuid.UUID]time.Time
	failed   []uuid.UUID
	maxRetry int
	done     bool
}

func (t *memoryTx) InsertEvent(ctx context.Context, rec Record) error {
	t.store.mu.Lock()
	err := t.store.InsertErr
	t.store.mu.Unlock()
	if err != nil {
		return err
	}
	t.inserts = append(t.inserts, rec)
	return nil
}

func (t *memoryTx) FetchPending(ctx context.Context, tenantID string, limit int) ([]Record, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	candidates := make([]*Record, 0, limit)
	for _, r := range t.store.records {
		if r.TenantID == tenantID && r.Status == StatusNew && !t.store.claimed[r.ID] {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].Seq < candidates[j].Seq
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]Record, 0, len(candidates))
	for _, r := range candidates {
		t.store.claimed[r.ID] = true
		t.claimed = append(t.claimed, r.ID)
		out = append(out, *r)
	}
	return out, nil
}

func (t *memoryTx) MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		t.sent[id] = at
	}
	return nil
}

func (t *memoryTx) MarkFailed(ctx context.Context, ids []uuid.UUID, maxRetry int) error {
	t.failed = append(t.failed, ids...)
	t.maxRetry = maxRetry
	return nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for i := range t.inserts {
		rec := t.inserts[i]
		t.store.seq++
		rec.Seq = t.store.seq
		t.store.records = append(t.store.records, &rec)
	}
	for _, r := range t.store.records {
		if at, ok := t.sent[r.ID]; ok && r.Status == StatusNew {
			published := at
			r.Status = StatusSent
			r.PublishedAt = &published
		}
	}
	for _, id := range t.failed {
		for _, r := range t.store.records {
			if r.ID == id && r.Status == StatusNew {
				r.RetryCount++
				if r.RetryCount >= t.maxRetry {
					r.Status = StatusErr
				}
			}
		}
	}
	t.release()
	t.done = true
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.release()
	t.done = true
	return nil
}

// release drops this transaction's claims; caller holds the store lock.
func (t *memoryTx) release() {
	for _, id := range t.claimed {
		delete(t.store.claimed, id)
	}
}
