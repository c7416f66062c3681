package execution

import (
	"bytes"
	"context"
	"dexarb/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type Simulator interface {
	Simulate(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResponse, error)
}

type Executor interface {
	Execute(ctx context.Context, req domain.SimulationRequest) (*domain.ExecutionResponse, error)
}

type HTTPClientConfig struct {
	SimulateURL    string
	ExecuteURL     string
	Timeout        time.Duration
	RequestsPerSec float64 // 0 -> unlimited
}

// HTTPClient talks JSON to the trade execution service
type HTTPClient struct {
	cfg     HTTPClientConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.SimulateURL == "" || cfg.ExecuteURL == "" {
		return nil, errors.New("simulate and execute urls are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}

	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}, nil
}

func (c *HTTPClient) Simulate(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResponse, error) {
	var resp domain.SimulationResponse
	if err := c.post(ctx, c.cfg.SimulateURL, req, &resp); err != nil {
		return nil, fmt.Errorf("simulate %s: %w", req.Hash, err)
	}
	return &resp, nil
}

func (c *HTTPClient) Execute(ctx context.Context, req domain.SimulationRequest) (*domain.ExecutionResponse, error) {
	var resp domain.ExecutionResponse
	if err := c.post(ctx, c.cfg.ExecuteURL, req, &resp); err != nil {
		return nil, fmt.Errorf("execute %s: %w", req.Hash, err)
	}
	return &resp, nil
}

func (c *HTTPClient) post(ctx context.Context, url string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", res.StatusCode, truncate(raw, 256))
	}
	if err = json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed response %q: %w", truncate(raw, 256), err)
	}

	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
