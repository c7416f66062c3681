package redis

import (
	"context"
	"dexarb/internal/config"
	"dexarb/internal/dedupe"
	rdb "dexarb/internal/stores/redis"
	"fmt"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

var _ dedupe.Deduper = (*Cooldown)(nil)

// Cooldown shares the execution cooldown between instances with SETNX + TTL
type Cooldown struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
}

func NewCooldown(log logger.Logger, cfg *config.DedupeConfig, rdb *rdb.Client) (*Cooldown, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the redis cooldown")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the redis cooldown")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dexarb:cooldown:"
	}

	return &Cooldown{
		log:    log,
		rdb:    rdb,
		ttl:    cfg.TTL,
		prefix: prefix,
	}, nil
}

func (c *Cooldown) Seen(ctx context.Context, hash string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.prefix+hash, 1, c.ttl).Result()
	if err != nil {
		c.log.Errorf("Redis SetNX cooldown error=%v", err)
		return false, fmt.Errorf("redis SetNX: %w", err)
	}
	// ok=true -> key was absent
	return !ok, nil
}

func (c *Cooldown) Forget(ctx context.Context, hash string) error {
	if err := c.rdb.Del(ctx, c.prefix+hash).Err(); err != nil {
		return fmt.Errorf("redis Del: %w", err)
	}
	return nil
}
