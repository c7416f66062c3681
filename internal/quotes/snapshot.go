package quotes

import (
	"bytes"
	"context"
	"dexarb/internal/domain"
	rdb "dexarb/internal/stores/redis"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"
)

// Serializable copy of the quote table kept in Redis for a warm start after restart
type Snapshot struct {
	Version int
	TakenAt time.Time
	Quotes  []domain.Quote
}

const snapshotVersion = 1

func MarshalSnapshot(qs []domain.Quote, takenAt time.Time) ([]byte, error) {
	snap := Snapshot{
		Version: snapshotVersion,
		TakenAt: takenAt.UTC(),
		Quotes:  qs,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return buf.Bytes(), nil
}

func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, errors.New("empty snapshot data")
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d", snap.Version)
	}

	return &snap, nil
}

type RedisSnapshotter struct {
	log logger.Logger
	rdb *rdb.Client
	key string
	ttl time.Duration
}

func NewRedisSnapshotter(log logger.Logger, rdb *rdb.Client, key string, ttl time.Duration) (*RedisSnapshotter, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required to the snapshotter")
	}
	if key == "" {
		key = "dexarb:quotes:snapshot"
	}

	return &RedisSnapshotter{log: log, rdb: rdb, key: key, ttl: ttl}, nil
}

func (s *RedisSnapshotter) Save(ctx context.Context, store Store) error {
	data, err := MarshalSnapshot(store.Snapshot(), time.Now())
	if err != nil {
		return err
	}

	if err = s.rdb.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot to redis: %w", err)
	}

	s.log.Debugf("Saved quote snapshot key=%s size=%d", s.key, len(data))
	return nil
}

// Restore loads the last snapshot into store; a missing key is not an error
func (s *RedisSnapshotter) Restore(ctx context.Context, store Store) (int, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshot from redis: %w", err)
	}

	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, q := range snap.Quotes {
		if err = store.Upsert(q); err != nil {
			s.log.Warnf("Skip quote from snapshot: %v", err)
			continue
		}
		restored++
	}

	s.log.Infof("Restored %d quotes from snapshot taken at %s", restored, snap.TakenAt.Format(time.RFC3339))
	return restored, nil
}
