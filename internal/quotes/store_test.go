package quotes

import (
	"dexarb/internal/domain"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

// ========== Test Helpers ==========

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

func newTestStore(t *testing.T) *ShardedStore {
	t.Helper()
	return NewShardedStore(newTestLogger(), domain.KeyByAddress, 8)
}

func mkQuote(pool, protocol, a, b string, price float64) domain.Quote {
	return domain.Quote{
		ID:          domain.MakeQuoteID(1, pool),
		PoolID:      pool,
		Protocol:    protocol,
		ChainID:     1,
		Token0:      domain.Asset{Address: a, Symbol: a, Protocol: protocol, PoolID: pool},
		Token1:      domain.Asset{Address: b, Symbol: b, Protocol: protocol, PoolID: pool},
		Token0Price: price,
		Token1Price: 1 / price,
		UpdatedAt:   time.Now(),
	}
}

// ========== Upsert / Snapshot ==========

func TestShardedStore_UpsertAndSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(mkQuote("p1", "uniswap", "0xa", "0xb", 2)))
	require.NoError(t, s.Upsert(mkQuote("p2", "uniswap", "0xb", "0xc", 0.6)))

	assert.Equal(t, 2, s.Len())
	assert.Len(t, s.Snapshot(), 2)
}

func TestShardedStore_UpsertOverwrites(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(mkQuote("p1", "uniswap", "0xa", "0xb", 2)))
	require.NoError(t, s.Upsert(mkQuote("p1", "uniswap", "0xa", "0xb", 3)))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 3.0, snap[0].Token0Price)
}

func TestShardedStore_RejectsZeroPrice(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	bad := mkQuote("p1", "uniswap", "0xa", "0xb", 2)
	bad.Token0Price = 0

	err := s.Upsert(bad)
	require.ErrorIs(t, err, domain.ErrInvalidQuote)
	assert.Empty(t, s.Snapshot())
	assert.Empty(t, s.IndexBy("uniswap", "0xa"))
}

// ========== Index ==========

func TestShardedStore_IndexBy(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(mkQuote("p1", "uniswap", "0xa", "0xb", 2)))
	require.NoError(t, s.Upsert(mkQuote("p2", "uniswap", "0xc", "0xA", 1)))
	require.NoError(t, s.Upsert(mkQuote("p3", "sushiswap", "0xa", "0xb", 2)))

	assert.Len(t, s.IndexBy("uniswap", "0xa"), 2)
	assert.Len(t, s.IndexBy("uniswap", "0XA"), 2)
	assert.Len(t, s.IndexBy("sushiswap", "0xa"), 1)
	assert.Len(t, s.IndexBy("uniswap", "0xc"), 1)
	assert.Empty(t, s.IndexBy("curve", "0xa"))
}

func TestShardedStore_IndexFollowsRepairing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(mkQuote("p1", "uniswap", "0xa", "0xb", 2)))
	require.NoError(t, s.Upsert(mkQuote("p1", "uniswap", "0xa", "0xc", 2)))

	assert.Empty(t, s.IndexBy("uniswap", "0xb"))
	assert.Len(t, s.IndexBy("uniswap", "0xc"), 1)
	assert.Len(t, s.IndexBy("uniswap", "0xa"), 1)
}

func TestShardedStore_IndexBySymbol(t *testing.T) {
	t.Parallel()
	s := NewShardedStore(newTestLogger(), domain.KeyBySymbol, 4)

	q := mkQuote("p1", "balancer", "0xa", "0xb", 2)
	q.Token0.Symbol = "WETH"
	require.NoError(t, s.Upsert(q))

	assert.Len(t, s.IndexBy("balancer", "weth"), 1)
	assert.Empty(t, s.IndexBy("balancer", "0xa"))
}

// ========== Clear ==========

func TestShardedStore_ClearRemovesEverything(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Upsert(mkQuote(fmt.Sprintf("p%d", i), "uniswap", "0xa", fmt.Sprintf("0x%d", i+100), 1.5)))
	}
	s.Clear()

	assert.Zero(t, s.Len())
	assert.Empty(t, s.Snapshot())
	assert.Empty(t, s.IndexBy("uniswap", "0xa"))
}

// Snapshot taken during Clear never observes a partially cleared table
func TestShardedStore_ClearAtomicForReaders(t *testing.T) {
	t.Parallel()
	s := NewShardedStore(newTestLogger(), domain.KeyByAddress, 64)

	const n = 256
	fill := func() {
		for i := 0; i < n; i++ {
			_ = s.Upsert(mkQuote(fmt.Sprintf("p%d", i), "uniswap", "0xa", fmt.Sprintf("0x%d", i+1000), 1.1))
		}
	}
	fill()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			s.Clear()
			fill()
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		got := len(s.Snapshot())
		// fill runs concurrently so any prefix is legal, but never more than n
		assert.LessOrEqual(t, got, n)
	}
}

func TestShardedStore_ConcurrentWritersAndReaders(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = s.Upsert(mkQuote(fmt.Sprintf("w%d-p%d", w, i%20), "uniswap", "0xa", fmt.Sprintf("0x%d", i%20+1), 1+float64(i)/1000))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = s.Snapshot()
				_ = s.IndexBy("uniswap", "0xa")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*20, s.Len())
	assert.Len(t, s.IndexBy("uniswap", "0xa"), 8*20)
}

// ========== Watermark ==========

func TestWatermark_Fresh(t *testing.T) {
	t.Parallel()
	now := time.Now()

	old := mkQuote("p1", "uniswap", "0xa", "0xb", 2)
	old.UpdatedAt = now.Add(-time.Hour)
	recent := mkQuote("p2", "uniswap", "0xa", "0xc", 2)
	recent.UpdatedAt = now.Add(-time.Second)
	unknown := mkQuote("p3", "uniswap", "0xa", "0xd", 2)
	unknown.UpdatedAt = time.Time{}

	wm := NewWatermark(time.Minute)
	wm.Advance(now)

	kept, dropped := wm.Fresh([]domain.Quote{old, recent, unknown})
	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 2)
	assert.Equal(t, recent.ID, kept[0].ID)

	// watermark never moves backwards
	wm.Advance(now.Add(-time.Hour))
	assert.True(t, wm.IsStale(now.Add(-2*time.Minute)))
}

func TestWatermark_Disabled(t *testing.T) {
	t.Parallel()
	wm := NewWatermark(0)
	wm.Advance(time.Now())
	assert.False(t, wm.IsStale(time.Unix(0, 1)))
}
