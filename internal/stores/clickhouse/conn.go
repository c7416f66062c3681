package clickhouse

import (
	"context"
	"dexarb/internal/config"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

type Conn struct {
	Native ch.Conn
}

func New(ctx context.Context, cfg *config.ClickHouseConfig) (*Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("clickhouse config cannot be nil")
	}
	opts, err := ch.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed parse DSN ch, error=%w", err)
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Compression == nil {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}
	opts.ClientInfo = ch.ClientInfo{
		Products: []struct{ Name, Version string }{
			{Name: "dexarb", Version: "0.1.0"},
		},
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed Open ch, error=%w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err = conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed ping ch, error=%w", err)
	}

	return &Conn{Native: conn}, nil
}

// EnsureSchema creates the execution log table if it is missing
func (c *Conn) EnsureSchema(ctx context.Context) error {
	if err := c.Native.Exec(ctx, executionsDDL); err != nil {
		return fmt.Errorf("failed create %s, error=%w", executionsTable, err)
	}
	return nil
}

func (c *Conn) Health(ctx context.Context) error {
	return c.Native.Ping(ctx)
}

func (c *Conn) Close() error {
	return c.Native.Close()
}

const executionsTable = "arb_executions"

const executionsDDL = `
CREATE TABLE IF NOT EXISTS arb_executions (
	executed_at      DateTime64(3, 'UTC'),
	arbitrage_hash   String,
	transaction_hash String,
	fake             UInt8,
	profit           Float64,
	volume           Float64,
	currency         LowCardinality(String),
	hops             UInt8,
	output           String
) ENGINE = MergeTree
ORDER BY (executed_at, arbitrage_hash)`
