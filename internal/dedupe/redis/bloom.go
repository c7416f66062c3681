package redis

import (
	"context"
	"dexarb/internal/config"
	rdb "dexarb/internal/stores/redis"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

/*
Bloom remembers every arbitrage hash the fleet has ever reported (RedisBloom module).
It answers "is this cycle new?" for the novelty counters:
	- BF.ADD returns 1 -> the hash was definitely never added before;
	- BF.ADD returns 0 -> probably added before (false positive rate = err_rate).
Cooldown expiry is not its job, a bloom filter cannot forget.
*/

type Bloom struct {
	rdb      *rdb.Client
	Key      string
	Capacity int64
	ErrRate  float64
}

func NewBloom(cfg *config.BloomConfig, rdb *rdb.Client) (*Bloom, error) {
	if cfg == nil {
		return nil, errors.New("bloom config is required to the bloom")
	}
	if rdb == nil {
		return nil, errors.New("redis client is required to the bloom")
	}

	key := cfg.Key
	if key == "" {
		key = "dexarb:bf:arbitrages"
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1_000_000
	}

	errRate := cfg.ErrRate
	if errRate <= 0 {
		errRate = 0.001
	}

	return &Bloom{
		rdb:      rdb,
		Key:      key,
		Capacity: capacity,
		ErrRate:  errRate,
	}, nil
}

// Ensure reserves the filter once, repeated calls are safe
func (b *Bloom) Ensure(ctx context.Context) error {
	exists, err := b.rdb.Exists(ctx, b.Key).Result()
	if err != nil {
		return fmt.Errorf("bloom exists check: %w", err)
	}
	if exists > 0 {
		return nil
	}

	// unknown command 'BF.RESERVE' when the module is not loaded
	if err = b.rdb.Do(ctx, "BF.RESERVE", b.Key, b.ErrRate, b.Capacity).Err(); err != nil {
		return fmt.Errorf("BF.RESERVE failed: %w", err)
	}

	return nil
}

// Novel adds every hash in one round trip and returns how many were new
func (b *Bloom) Novel(ctx context.Context, hashes []string) (int, error) {
	if len(hashes) == 0 {
		return 0, nil
	}

	pipe := b.rdb.Pipeline()
	cmds := make([]*goredis.Cmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.Do(ctx, "BF.ADD", b.Key, h)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("bloom pipeline: %w", err)
	}

	novel := 0
	for _, c := range cmds {
		v, err := c.Int()
		if err != nil {
			return novel, fmt.Errorf("BF.ADD reply: %w", err)
		}
		if v == 1 {
			novel++
		}
	}

	return novel, nil
}

// Exists true -> the hash was probably reported before
func (b *Bloom) Exists(ctx context.Context, hash string) (bool, error) {
	res := b.rdb.Do(ctx, "BF.EXISTS", b.Key, hash)
	if err := res.Err(); err != nil {
		return false, fmt.Errorf("BF.EXISTS failed: %w", err)
	}
	v, err := res.Int()
	return v == 1, err
}
