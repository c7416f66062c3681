package handlers

import (
	"context"
	"dexarb/internal/domain"
	"dexarb/internal/graph"
	"dexarb/internal/negcycle"
	"dexarb/internal/resolver"
	"dexarb/internal/service"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/nevasik7/alerting/logger"

	loggerCfg "gitlab.com/nevasik7/alerting/config"
)

// ========== Test Helpers ==========

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{Level: "error", Format: "json"})
}

func quote(pool, a, b string, price float64) domain.Quote {
	return domain.Quote{
		ID:          domain.MakeQuoteID(1, pool),
		PoolID:      pool,
		Protocol:    "uniswap",
		ChainID:     1,
		Token0:      domain.Asset{Address: a, Symbol: strings.ToUpper(a[2:]), Exchange: "uniswap"},
		Token1:      domain.Asset{Address: b, Symbol: strings.ToUpper(b[2:]), Exchange: "uniswap"},
		Token0Price: price,
		Token1Price: 1 / price,
	}
}

// profitableIteration runs the real pipeline over a triangle with a 1.2x loop
func profitableIteration(t *testing.T) *service.Iteration {
	t.Helper()

	qs := []domain.Quote{
		quote("ab", "0xa", "0xb", 2.0),
		quote("bc", "0xb", "0xc", 0.6),
		quote("ca", "0xc", "0xa", 1.0),
	}
	g, idx := graph.NewBuilder(domain.KeyByAddress).Build(qs)
	cycles, stats, err := negcycle.Sweep(context.Background(), g, negcycle.Options{})
	require.NoError(t, err)
	arbs, rs := resolver.New(newTestLogger(), nil).Resolve(cycles)
	require.NotEmpty(t, arbs)

	start := time.Unix(1_700_000_000, 0)
	return &service.Iteration{
		Seq:        7,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Quotes:     len(qs),
		Graph:      g,
		Index:      idx,
		Cycles:     cycles,
		Sweep:      stats,
		Resolve:    rs,
		Arbitrages: arbs,
	}
}

type fakeScanner struct {
	it       *service.Iteration
	err      error
	lastErr  error
	checkErr error
	mode     string
}

func (f *fakeScanner) Current(context.Context) (*service.Iteration, error) { return f.it, f.err }

func (f *fakeScanner) Last() (*service.Iteration, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	return f.it, nil
}

func (f *fakeScanner) State() service.State { return service.StateSleeping }

func (f *fakeScanner) Mode() string { return f.mode }

func (f *fakeScanner) CheckDependency(context.Context) error { return f.checkErr }

type fakeRenderer struct {
	gotFormat string
	gotDot    string
	err       error
}

func (r *fakeRenderer) Render(_ context.Context, format string, dot []byte) ([]byte, error) {
	r.gotFormat, r.gotDot = format, string(dot)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("<svg/>"), nil
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func serve(h http.HandlerFunc, target string) (*httptest.ResponseRecorder, envelope) {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

// ========== Health ==========

func TestNewHandler_PanicsWithoutScanner(t *testing.T) {
	assert.Panics(t, func() { NewHandler(newTestLogger(), nil, nil) })
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestLogger(), &fakeScanner{}, nil)
	rec, env := serve(h.Healthz, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", env.Status)
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestLogger(), &fakeScanner{}, nil)
	rec, env := serve(h.Readiness, "/readiness")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dependencies":"healthy"}`, string(env.Data))

	h = NewHandler(newTestLogger(), &fakeScanner{checkErr: errors.New("dependency check failed: redis: down")}, nil)
	rec, env = serve(h.Readiness, "/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "dependencies_unhealthy", env.Error.Code)
	assert.Contains(t, rec.Body.String(), "redis: down")
}

// ========== Graph ==========

func TestGraph_DOTHighlightsCycles(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestLogger(), &fakeScanner{it: profitableIteration(t)}, nil)
	rec, _ := serve(h.Graph, "/api/graph")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/vnd.graphviz; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "7", rec.Header().Get("X-Iteration-Seq"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "digraph arbitrage {"))
	assert.Contains(t, body, "color=red")

	rec, _ = serve(h.Graph, "/api/graph?highlight=false")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "color=red")
}

func TestGraph_SVGUsesRenderer(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{}
	h := NewHandler(newTestLogger(), &fakeScanner{it: profitableIteration(t)}, r)
	rec, _ := serve(h.Graph, "/api/graph?format=SVG")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<svg/>", rec.Body.String())
	assert.Equal(t, "svg", r.gotFormat)
	assert.Contains(t, r.gotDot, "digraph arbitrage")
}

func TestGraph_Errors(t *testing.T) {
	t.Parallel()

	it := profitableIteration(t)

	testCases := []struct {
		name     string
		scanner  *fakeScanner
		renderer Renderer
		target   string
		wantCode int
		wantErr  string
	}{
		{name: "unknown_format", scanner: &fakeScanner{it: it}, target: "/api/graph?format=pdf", wantCode: http.StatusBadRequest, wantErr: "bad_format"},
		{name: "renderer_disabled", scanner: &fakeScanner{it: it}, target: "/api/graph?format=svg", wantCode: http.StatusNotImplemented, wantErr: "renderer_disabled"},
		{
			name:     "renderer_failed",
			scanner:  &fakeScanner{it: it},
			renderer: &fakeRenderer{err: errors.New("dot: not found")},
			target:   "/api/graph?format=png",
			wantCode: http.StatusBadGateway,
			wantErr:  "render_failed",
		},
		{name: "no_iteration", scanner: &fakeScanner{err: service.ErrNoIteration}, target: "/api/graph", wantCode: http.StatusServiceUnavailable, wantErr: "no_iteration"},
		{name: "empty_store", scanner: &fakeScanner{err: service.ErrEmptyStore}, target: "/api/graph", wantCode: http.StatusServiceUnavailable, wantErr: "empty_store"},
		{name: "timeout", scanner: &fakeScanner{err: context.DeadlineExceeded}, target: "/api/graph", wantCode: http.StatusGatewayTimeout, wantErr: "iteration_timeout"},
		{name: "refresh_failed", scanner: &fakeScanner{err: errors.New("refresh: boom")}, target: "/api/graph", wantCode: http.StatusInternalServerError, wantErr: "iteration_failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(newTestLogger(), tc.scanner, tc.renderer)
			rec, env := serve(h.Graph, tc.target)

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantErr, env.Error.Code)
		})
	}
}

func TestDotRenderer_MissingBinary(t *testing.T) {
	t.Parallel()

	_, err := DotRenderer{Binary: "/nonexistent/dot", Timeout: time.Second}.Render(context.Background(), "svg", []byte("digraph {}"))
	assert.Error(t, err)
}

// ========== Arbitrages / Stats ==========

func TestArbitrages(t *testing.T) {
	t.Parallel()

	it := profitableIteration(t)
	it.Arbitrages = append(it.Arbitrages, domain.Arbitrage{Hash: "second", FinalStake: 1.01})
	h := NewHandler(newTestLogger(), &fakeScanner{it: it}, nil)

	rec, env := serve(h.Arbitrages, "/api/arbitrages?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp arbitragesResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, uint64(7), resp.Seq)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Arbitrages, 1)
	assert.InDelta(t, 1.2, resp.Arbitrages[0].FinalStake, 1e-9)

	rec, env = serve(h.Arbitrages, "/api/arbitrages?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_limit", env.Error.Code)
}

func TestArbitrages_EmptyListIsNotNull(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestLogger(), &fakeScanner{it: &service.Iteration{Seq: 1}}, nil)
	_, env := serve(h.Arbitrages, "/api/arbitrages")

	assert.JSONEq(t, `{"seq":1,"total":0,"arbitrages":[]}`, string(env.Data))
}

func TestStats(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestLogger(), &fakeScanner{it: profitableIteration(t), mode: "merge"}, nil)
	rec, env := serve(h.Stats, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "sleeping", resp.State)
	assert.Equal(t, "merge", resp.Mode)
	require.NotNil(t, resp.Last)
	assert.Equal(t, uint64(7), resp.Last.Seq)
	assert.Equal(t, 3, resp.Last.Vertices)
	assert.Equal(t, int64(1000), resp.Last.DurationMs)

	h = NewHandler(newTestLogger(), &fakeScanner{lastErr: service.ErrNoIteration, mode: "full_refresh"}, nil)
	rec, env = serve(h.Stats, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"sleeping","mode":"full_refresh"}`, string(env.Data))
}
