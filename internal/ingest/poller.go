package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
	"golang.org/x/time/rate"
)

type PollerConfig struct {
	URL            string
	ChainID        uint32
	IDMode         string
	Timeout        time.Duration
	RequestsPerSec float64
}

// PoolsPoller pulls the full pool listing from a REST endpoint
type PoolsPoller struct {
	log     logger.Logger
	cfg     PollerConfig
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func NewPoolsPoller(log logger.Logger, cfg PollerConfig) (*PoolsPoller, error) {
	if cfg.URL == "" {
		return nil, errors.New("pools url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}

	return &PoolsPoller{
		log:     log,
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		now:     time.Now,
	}, nil
}

func (p *PoolsPoller) Fetch(ctx context.Context) ([]PoolMessage, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pools: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("fetch pools: unexpected status %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read pools: %w", err)
	}

	return DecodePools(body)
}

// Refresh fetches the listing and feeds it into the sink
func (p *PoolsPoller) Refresh(ctx context.Context, sink Sink) (Batch, error) {
	pools, err := p.Fetch(ctx)
	if err != nil {
		return Batch{}, err
	}

	b := Feed(p.log, sink, pools, p.cfg.IDMode, p.cfg.ChainID, p.now())
	p.log.Debugf("Pools refreshed: pools=%d accepted=%d dropped=%d", b.Pools, b.Accepted, b.Dropped)

	return b, nil
}
