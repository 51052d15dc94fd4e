package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/eventrelay/libs/kafkax"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler runs the business side of one message inside the transaction
// that also marks the message processed.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

// Reader is the consuming side of a kafka.Reader.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// TxBeginner opens the handler transaction; *db.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Consumer reads one topic and funnels each message through the inbox:
// already-processed messages are dropped, new ones run the handler and the
// processed mark in a single transaction. A crash between handling and
// marking rolls back both, so redelivery retries cleanly.
type Consumer struct {
	reader  Reader
	beginer TxBeginner
	ledger  inbox.Ledger
	cache   *inbox.SeenCache
	handler Handler
	logger  *slog.Logger
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, beginer TxBeginner, ledger inbox.Ledger, cache *inbox.SeenCache, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(logger, reader, beginer, ledger, cache, handler)
}

func NewWithReader(logger *slog.Logger, reader Reader, beginer TxBeginner, ledger inbox.Ledger, cache *inbox.SeenCache, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		beginer: beginer,
		ledger:  ledger,
		cache:   cache,
		handler: handler,
		logger:  logger,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)
		if err := c.process(ctxSpan, msg); err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)

	if c.cache.Seen(ctx, meta.TenantID, meta.EventID) {
		c.logger.Info("duplicate event ignored (cache)", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}
	processed, err := c.ledger.IsProcessed(ctx, meta.TenantID, meta.EventID)
	if err != nil {
		c.logger.Error("inbox check failed", "err", err, "event_id", meta.EventID)
		return err
	}
	if processed {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		c.cache.MarkSeen(ctx, meta.TenantID, meta.EventID)
		return nil
	}

	tx, err := c.beginer.Begin(ctx)
	if err != nil {
		c.logger.Error("begin failed", "err", err)
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := c.handler(ctx, tx, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		return err
	}
	if _, err := c.ledger.MarkProcessedTx(ctx, tx, meta.TenantID, inbox.Entry{
		MessageID: meta.EventID,
		EventType: meta.EventType,
		Source:    msg.Topic,
		Payload:   msg.Value,
	}); err != nil {
		c.logger.Error("inbox mark failed", "err", err, "event_id", meta.EventID)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		c.logger.Error("commit failed", "err", err, "event_id", meta.EventID)
		return err
	}
	c.cache.MarkSeen(ctx, meta.TenantID, meta.EventID)
	return nil
}
