package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/eventrelay/libs/config"
	"github.com/md-rashed-zaman/eventrelay/libs/db"
	"github.com/md-rashed-zaman/eventrelay/libs/httpx"
	"github.com/md-rashed-zaman/eventrelay/libs/kafkax"
	otelx "github.com/md-rashed-zaman/eventrelay/libs/otel"
	"github.com/md-rashed-zaman/eventrelay/libs/runtime"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/bus"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/consumer"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/events"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/inbox"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/outbox"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/router"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "relay-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	tenants := config.StringList("RELAY_TENANTS")
	if len(tenants) == 0 {
		panic("RELAY_TENANTS is required (comma-separated tenant ids)")
	}

	// One pooled connection per projector plus headroom for the consumer
	// and ready checks.
	pool, err := db.Open(ctx, dbURL, int32(config.Int("DB_MAX_CONNS", len(tenants)+4)))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	if len(kafkax.SplitBrokers(brokers)) == 0 {
		panic("KAFKA_BROKERS is required")
	}
	kafkaBus := bus.NewKafka(kafkax.SplitBrokers(brokers))
	defer kafkaBus.Close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
	}
	seenCache := inbox.NewSeenCache(rdb, config.Duration("INBOX_CACHE_TTL", 24*time.Hour), logger)
	if rdb == nil {
		seenCache = nil
	}

	registry := events.NewRegistry()
	rt := router.New(config.String("DEFAULT_DESTINATION", "default.events"), nil)
	storage := outbox.NewSQLStorage(pool)

	for _, tenant := range tenants {
		projector := outbox.NewProjector(storage, kafkaBus, rt, registry, logger, outbox.ProjectorConfig{
			TenantID:     tenant,
			BatchSize:    config.Int("RELAY_BATCH_SIZE", 50),
			MaxRetry:     config.Int("RELAY_MAX_RETRY", 5),
			BusyDelay:    config.Duration("RELAY_BUSY_DELAY", 200*time.Millisecond),
			IdleDelay:    config.Duration("RELAY_IDLE_DELAY", 1*time.Second),
			IdleMaxDelay: config.Duration("RELAY_IDLE_MAX_DELAY", 30*time.Second),
			ErrCooldown:  config.Duration("RELAY_ERR_COOLDOWN", 5*time.Second),
		})
		go projector.Run(ctx)
	}

	ledger := inbox.NewSQLLedger(pool)

	// Optional audit consumer: marks consumed events processed and logs
	// them, demonstrating the inbox-gated handler shape.
	if topic := config.String("KAFKA_CONSUME_TOPIC", ""); topic != "" {
		auditConsumer := consumer.New(logger, pool, ledger, seenCache, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   topic,
		}, func(ctx context.Context, _ pgx.Tx, msg kafka.Message) error {
			meta := kafkax.ExtractEventMeta(msg)
			evt, err := registry.Decode(meta.EventType, msg.Value)
			if err != nil {
				logger.Warn("audit decode failed", "event_type", meta.EventType, "err", err)
				return nil
			}
			logger.Info("event consumed", "event_id", meta.EventID, "event_type", meta.EventType, "event", evt)
			return nil
		})
		go auditConsumer.Run(ctx)
	}

	// Inbox retention sweep, per tenant.
	go func() {
		retention := time.Duration(config.Int("INBOX_RETENTION_DAYS", 30)) * 24 * time.Hour
		ticker := time.NewTicker(config.Duration("INBOX_CLEANUP_EVERY", 6*time.Hour))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, tenant := range tenants {
					n, err := ledger.CleanupOldRecords(ctx, tenant, retention)
					if err != nil {
						logger.Error("inbox cleanup failed", "tenant", tenant, "err", err)
						continue
					}
					if n > 0 {
						logger.Info("inbox cleanup", "tenant", tenant, "removed", n)
					}
				}
			}
		}
	}()

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "relay")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("relay service stopped")
}
