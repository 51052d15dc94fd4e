package inbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache is a Redis fast path in front of the ledger: a hit skips the
// Postgres existence check for hot duplicates. It is an optimization only
// and fails open — the ledger stays the source of truth.
type SeenCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewSeenCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *SeenCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SeenCache{rdb: rdb, ttl: ttl, prefix: "inbox:seen", logger: logger}
}

// Seen reports whether the message was recently marked. Redis errors count
// as unseen so processing falls through to the ledger.
func (c *SeenCache) Seen(ctx context.Context, tenantID, messageID string) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	n, err := c.rdb.Exists(ctx, c.key(tenantID, messageID)).Result()
	if err != nil {
		c.logger.Warn("inbox seen-cache read failed", "err", err)
		return false
	}
	return n > 0
}

func (c *SeenCache) MarkSeen(ctx context.Context, tenantID, messageID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(tenantID, messageID), 1, c.ttl).Err(); err != nil {
		c.logger.Warn("inbox seen-cache write failed", "err", err)
	}
}

func (c *SeenCache) key(tenantID, messageID string) string {
	return c.prefix + ":" + tenantID + ":" + messageID
}
