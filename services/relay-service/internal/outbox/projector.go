package outbox

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/eventrelay/libs/kafkax"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/events"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/router"
)

// Message is one routed delivery handed to the bus.
type Message struct {
	Destination string
	Key         string
	Value       []byte
	Headers     map[string]string
	Traceparent string
	Tracestate  string
}

// Bus publishes a batch to the broker. The batch either fully succeeds or
// returns an error; partial publishes surface as redelivery, which the
// consumer-side inbox absorbs.
type Bus interface {
	Publish(ctx context.Context, msgs []Message) error
}

// ProjectorConfig are the knobs for one projector instance. Zero values
// fall back to the defaults in NewProjector.
type ProjectorConfig struct {
	TenantID     string
	BatchSize    int
	MaxRetry     int
	BusyDelay    time.Duration
	IdleDelay    time.Duration
	IdleMaxDelay time.Duration
	ErrCooldown  time.Duration
}

// Projector drains NEW outbox rows for exactly one tenant to the bus.
// Each instance is single-threaded; run more instances (same or different
// tenants) for parallelism. Instances sharing a tenant never double-publish
// a row because FetchPending claims rows exclusively.
type Projector struct {
	storage  Storage
	bus      Bus
	router   *router.Router
	registry *events.Registry
	logger   *slog.Logger
	cfg      ProjectorConfig
}

func NewProjector(storage Storage, bus Bus, rt *router.Router, reg *events.Registry, logger *slog.Logger, cfg ProjectorConfig) *Projector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 5
	}
	if cfg.BusyDelay <= 0 {
		cfg.BusyDelay = 200 * time.Millisecond
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = 1 * time.Second
	}
	if cfg.IdleMaxDelay <= 0 {
		cfg.IdleMaxDelay = 30 * time.Second
	}
	if cfg.ErrCooldown <= 0 {
		cfg.ErrCooldown = 5 * time.Second
	}
	return &Projector{
		storage:  storage,
		bus:      bus,
		router:   rt,
		registry: reg,
		logger:   logger.With("tenant", cfg.TenantID),
		cfg:      cfg,
	}
}

// ProcessOnce drains one batch. The returned bool means "poll again soon":
// true after a full batch or a failed publish, false when the tenant's
// backlog looks empty.
func (p *Projector) ProcessOnce(ctx context.Context) (bool, error) {
	claimed, failed, err := p.processBatch(ctx)
	return failed || (claimed > 0 && claimed == p.cfg.BatchSize), err
}

func (p *Projector) processBatch(ctx context.Context) (claimed int, failed bool, err error) {
	tx, err := p.storage.Begin(ctx)
	if err != nil {
		return 0, false, err
	}

	records, err := tx.FetchPending(ctx, p.cfg.TenantID, p.cfg.BatchSize)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, false, err
	}
	if len(records) == 0 {
		return 0, false, tx.Commit(ctx)
	}

	ids := make([]uuid.UUID, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	msgs := p.buildMessages(records)

	// The claiming transaction intentionally stays open across the
	// publish call: a crash after publish but before commit re-delivers
	// the batch (at-least-once), and a hung publish holds this tenant's
	// row locks for its full duration.
	if err := p.bus.Publish(ctx, msgs); err != nil {
		p.logger.Warn("publish failed, batch scheduled for retry", "count", len(records), "err", err)
		if err2 := tx.MarkFailed(ctx, ids, p.cfg.MaxRetry); err2 != nil {
			_ = tx.Rollback(ctx)
			return len(records), true, err2
		}
		return len(records), true, tx.Commit(ctx)
	}

	if err := tx.MarkSent(ctx, ids, time.Now().UTC()); err != nil {
		_ = tx.Rollback(ctx)
		return len(records), false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return len(records), false, err
	}
	return len(records), false, nil
}

// buildMessages routes each record and shapes the per-destination copies.
func (p *Projector) buildMessages(records []Record) []Message {
	var msgs []Message
	for _, rec := range records {
		if _, err := p.registry.Decode(rec.EventType, rec.Payload); err != nil {
			// A registered decoder rejected the payload; relay the raw
			// bytes anyway rather than wedging the tenant's queue.
			p.logger.Warn("payload decode failed", "event_id", rec.ID, "event_type", rec.EventType, "err", err)
		}
		routes := p.router.Resolve(router.Input{
			EventType:     rec.EventType,
			RoutingKey:    rec.RoutingKey,
			RoutingConfig: rec.RoutingConfig,
			Payload:       rec.Payload,
		})
		for _, route := range routes {
			headers := map[string]string{
				kafkax.HeaderEventID:   rec.ID.String(),
				kafkax.HeaderEventType: rec.EventType,
				kafkax.HeaderTenantID:  rec.TenantID,
			}
			if route.DelayMS > 0 {
				headers[kafkax.HeaderDelayMS] = strconv.FormatInt(route.DelayMS, 10)
			}
			if route.RetryPolicy != "" {
				headers[kafkax.HeaderRetryPolicy] = route.RetryPolicy
			}
			msgs = append(msgs, Message{
				Destination: route.Destination,
				Key:         rec.AggregateID,
				Value:       route.Payload,
				Headers:     headers,
				Traceparent: rec.Traceparent,
				Tracestate:  rec.Tracestate,
			})
		}
	}
	return msgs
}

// Run polls until ctx is cancelled. Cancellation is checked at the top of
// each iteration; a cycle that already claimed rows finishes its commit
// before the loop exits. Errors inside a cycle are logged and absorbed
// with a cooldown — the loop itself never dies.
func (p *Projector) Run(ctx context.Context) {
	consecutiveEmpty := 0
	for {
		if ctx.Err() != nil {
			return
		}

		// Detached from cancellation so an in-flight cycle always
		// reaches its commit and leaves no half-claimed rows.
		claimed, failed, err := p.processBatch(context.WithoutCancel(ctx))

		var delay time.Duration
		switch {
		case err != nil:
			p.logger.Error("projector cycle failed", "err", err)
			consecutiveEmpty = 0
			delay = p.cfg.ErrCooldown
		case failed || claimed > 0:
			// Failed batches retry on the same short cadence as busy ones.
			consecutiveEmpty = 0
			delay = p.cfg.BusyDelay
		default:
			delay = idleBackoff(p.cfg.IdleDelay, p.cfg.IdleMaxDelay, consecutiveEmpty)
			consecutiveEmpty++
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// idleBackoff doubles the base delay per consecutive empty poll, capped.
func idleBackoff(base, max time.Duration, consecutiveEmpty int) time.Duration {
	delay := base
	for i := 0; i < consecutiveEmpty; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}
