package quotes

import (
	"context"
	"dexarb/internal/domain"
	rdb "dexarb/internal/stores/redis"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedisForSnapshot(t *testing.T) (*miniredis.Miniredis, *rdb.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &rdb.Client{
		Client: goredis.NewClient(&goredis.Options{
			Addr: mr.Addr(),
		}),
	}
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestSnapshot_MarshalRoundTrip(t *testing.T) {
	qs := []domain.Quote{
		mkQuote("p1", "uniswap", "0xa", "0xb", 2),
		mkQuote("p2", "balancer", "0xb", "0xc", 0.6),
	}
	takenAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	data, err := MarshalSnapshot(qs, takenAt)
	require.NoError(t, err)

	snap, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snapshotVersion, snap.Version)
	assert.True(t, takenAt.Equal(snap.TakenAt))
	require.Len(t, snap.Quotes, 2)
	assert.Equal(t, "balancer", snap.Quotes[1].Protocol)
}

func TestSnapshot_UnmarshalErrors(t *testing.T) {
	_, err := UnmarshalSnapshot(nil)
	assert.Error(t, err)

	_, err = UnmarshalSnapshot([]byte("definitely not gob"))
	assert.Error(t, err)
}

func TestRedisSnapshotter_SaveRestore(t *testing.T) {
	mr, client := setupTestRedisForSnapshot(t)
	ctx := context.Background()

	src := newTestStore(t)
	require.NoError(t, src.Upsert(mkQuote("p1", "uniswap", "0xa", "0xb", 2)))
	require.NoError(t, src.Upsert(mkQuote("p2", "uniswap", "0xb", "0xc", 0.6)))

	snapper, err := NewRedisSnapshotter(newTestLogger(), client, "test:snap", time.Hour)
	require.NoError(t, err)
	require.NoError(t, snapper.Save(ctx, src))
	assert.True(t, mr.Exists("test:snap"))

	dst := newTestStore(t)
	n, err := snapper.Restore(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, dst.IndexBy("uniswap", "0xb"), 2)
}

func TestRedisSnapshotter_RestoreMissingKey(t *testing.T) {
	_, client := setupTestRedisForSnapshot(t)

	snapper, err := NewRedisSnapshotter(newTestLogger(), client, "", 0)
	require.NoError(t, err)

	n, err := snapper.Restore(context.Background(), newTestStore(t))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRedisSnapshotter_NilClient(t *testing.T) {
	_, err := NewRedisSnapshotter(newTestLogger(), nil, "k", 0)
	assert.Error(t, err)
}
