package redis

import (
	"context"
	"dexarb/internal/config"
	rdb "dexarb/internal/stores/redis"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
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

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *rdb.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &rdb.Client{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
	}
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

// ========== Constructor Tests ==========

func TestNewCooldown(t *testing.T) {
	_, client := setupTestRedis(t)

	tests := []struct {
		name       string
		cfg        *config.DedupeConfig
		client     *rdb.Client
		wantErr    string
		wantPrefix string
	}{
		{name: "custom prefix", cfg: &config.DedupeConfig{Prefix: "t:", TTL: time.Minute}, client: client, wantPrefix: "t:"},
		{name: "default prefix", cfg: &config.DedupeConfig{TTL: time.Minute}, client: client, wantPrefix: "dexarb:cooldown:"},
		{name: "nil config", client: client, wantErr: "config is required"},
		{name: "nil redis", cfg: &config.DedupeConfig{}, wantErr: "redis client is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCooldown(newTestLogger(), tt.cfg, tt.client)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, c.prefix)
		})
	}
}

// ========== Seen / Forget ==========

func TestCooldown_SeenSetsKeyWithTTL(t *testing.T) {
	_, client := setupTestRedis(t)

	c, err := NewCooldown(newTestLogger(), &config.DedupeConfig{Prefix: "cd:", TTL: time.Hour}, client)
	require.NoError(t, err)

	ctx := context.Background()

	seen, err := c.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)

	ttl, err := client.TTL(ctx, "cd:abc").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)

	seen, err = c.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestCooldown_ExpiresWithRedisTTL(t *testing.T) {
	mr, client := setupTestRedis(t)

	c, err := NewCooldown(newTestLogger(), &config.DedupeConfig{TTL: time.Minute}, client)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Seen(ctx, "abc")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	seen, err := c.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestCooldown_Forget(t *testing.T) {
	mr, client := setupTestRedis(t)

	c, err := NewCooldown(newTestLogger(), &config.DedupeConfig{Prefix: "cd:", TTL: time.Hour}, client)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Seen(ctx, "abc")
	require.NoError(t, err)

	require.NoError(t, c.Forget(ctx, "abc"))
	assert.False(t, mr.Exists("cd:abc"))

	seen, err := c.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestCooldown_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)

	c, err := NewCooldown(newTestLogger(), &config.DedupeConfig{TTL: time.Hour}, client)
	require.NoError(t, err)

	mr.Close()

	_, err = c.Seen(context.Background(), "abc")
	assert.Error(t, err)
	assert.Error(t, c.Forget(context.Background(), "abc"))
}
