package ingest

import (
	"context"
	"dexarb/internal/domain"
	"dexarb/internal/pricing"
	"fmt"
	"sync/atomic"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

// Sink receives quotes from a source
type Sink interface {
	Upsert(q domain.Quote) error
}

// Source pushes quotes into a sink until ctx is cancelled
type Source interface {
	Run(ctx context.Context, sink Sink) error
}

// Batch is the outcome of feeding a set of pool messages into a sink
type Batch struct {
	Pools    int
	Accepted int
	Dropped  int
}

// Ingestor normalizes and validates quotes before they reach the store
type Ingestor struct {
	log  logger.Logger
	next Sink

	accepted atomic.Uint64
	dropped  atomic.Uint64
}

func NewIngestor(log logger.Logger, next Sink) *Ingestor {
	return &Ingestor{log: log, next: next}
}

func (i *Ingestor) Upsert(q domain.Quote) error {
	if err := pricing.Normalize(&q); err != nil {
		i.dropped.Add(1)
		return fmt.Errorf("normalize: %w", err)
	}
	if err := i.next.Upsert(q); err != nil {
		i.dropped.Add(1)
		return err
	}
	i.accepted.Add(1)
	return nil
}

func (i *Ingestor) Accepted() uint64 { return i.accepted.Load() }

func (i *Ingestor) Dropped() uint64 { return i.dropped.Load() }

// Feed expands pool messages and upserts them; bad pools and quotes are logged and skipped
func Feed(log logger.Logger, sink Sink, pools []PoolMessage, idMode string, chainID uint32, now time.Time) Batch {
	b := Batch{Pools: len(pools)}

	for p := range pools {
		qs, err := pools[p].Quotes(idMode, chainID, now)
		if err != nil {
			b.Dropped++
			log.Warnf("Skip pool, error=%v", err)
			continue
		}
		for _, q := range qs {
			if err = sink.Upsert(q); err != nil {
				b.Dropped++
				log.Warnf("Drop quote %s, error=%v", q.ID, err)
				continue
			}
			b.Accepted++
		}
	}

	return b
}
