package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vouh/Course-corner-sub000/internal/models"
)

const (
	sessionKeyPrefix  = "stk:session:"
	checkoutKeyPrefix = "stk:checkout:"
)

// Redis is a SessionCache shared between processes. Errors are logged and
// reported as misses.
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Redis) Put(ctx context.Context, tx models.Transaction) {
	payload, err := json.Marshal(tx)
	if err != nil {
		c.logger.Warn("cache encode failed", "session_id", tx.SessionID, "error", err)
		return
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+tx.SessionID, payload, c.ttl)
	if ref := tx.CheckoutRefValue(); ref != "" {
		pipe.Set(ctx, checkoutKeyPrefix+ref, tx.SessionID, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache put failed", "session_id", tx.SessionID, "error", err)
	}
}

func (c *Redis) Get(ctx context.Context, sessionID string) (models.Transaction, bool) {
	var tx models.Transaction
	raw, err := c.rdb.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", "session_id", sessionID, "error", err)
		}
		return tx, false
	}
	if err := json.Unmarshal(raw, &tx); err != nil {
		c.logger.Warn("cache decode failed", "session_id", sessionID, "error", err)
		return tx, false
	}
	return tx, true
}

func (c *Redis) SessionIDForCheckoutRef(ctx context.Context, checkoutRef string) (string, bool) {
	id, err := c.rdb.Get(ctx, checkoutKeyPrefix+checkoutRef).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache ref lookup failed", "checkout_ref", checkoutRef, "error", err)
		}
		return "", false
	}
	return id, true
}
