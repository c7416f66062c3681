package clickhouse

import (
	"context"
	"dexarb/internal/config"
	"dexarb/internal/domain"
	"errors"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrWriterClosed = errors.New("clickhouse writer closed")

type batchPreparer interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// Async batched execution log, flushes on size or interval
type Writer struct {
	log logger.Logger

	conn batchPreparer
	cfg  config.ClickHouseWriterConfig

	inCh      chan domain.ExecutionRecord
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	onFlushErr func(rows int, err error)
}

func NewWriter(log logger.Logger, conn batchPreparer, cfg config.ClickHouseWriterConfig) (*Writer, error) {
	if conn == nil {
		return nil, errors.New("clickhouse connection is required to the writer")
	}

	// sane defaults
	if cfg.BatchMaxRows <= 0 {
		cfg.BatchMaxRows = 1000
	}
	if cfg.BatchMaxInterval <= 0 {
		cfg.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		log:      log,
		conn:     conn,
		cfg:      cfg,
		inCh:     make(chan domain.ExecutionRecord, 1024),
		closedCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Append implements the execution log
func (w *Writer) Append(ctx context.Context, rec domain.ExecutionRecord) error {
	select {
	case <-w.closedCh:
		return ErrWriterClosed
	default:
	}

	select {
	case w.inCh <- rec:
		return nil
	case <-w.closedCh:
		return ErrWriterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes what is buffered and stops the loop
func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]domain.ExecutionRecord, 0, w.cfg.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := w.insertBatch(context.Background(), batch); err != nil {
			w.log.Errorf("Failed insert [%d] rows by batch to clickhouse, error=%v", len(batch), err)
			if w.onFlushErr != nil {
				w.onFlushErr(len(batch), err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-w.inCh:
			batch = append(batch, rec)
			if len(batch) >= w.cfg.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.closedCh:
			for {
				select {
				case rec := <-w.inCh:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) insertBatch(ctx context.Context, rows []domain.ExecutionRecord) error {
	backoff := w.cfg.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if lastErr = w.send(ctx, rows); lastErr == nil {
			return nil
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}

func (w *Writer) send(ctx context.Context, rows []domain.ExecutionRecord) error {
	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO arb_executions (
			executed_at,
			arbitrage_hash,
			transaction_hash,
			fake,
			profit,
			volume,
			currency,
			hops,
			output
		)
	`)
	if err != nil {
		return err
	}

	for i := range rows {
		r := &rows[i]
		var fake uint8
		if r.Fake {
			fake = 1
		}

		if err = batch.Append(
			r.ExecutedAt,
			r.ArbitrageHash,
			r.TransactionHash,
			fake,
			r.Profit,
			r.Volume,
			r.Currency,
			uint8(r.Hops),
			r.Output,
		); err != nil {
			_ = batch.Abort()
			return err
		}
	}

	return batch.Send()
}
