package metrics

import (
	"dexarb/internal/service"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dexarb"

var _ service.Observer = (*Metrics)(nil)

// Metrics owns a private registry so tests and several instances never collide
type Metrics struct {
	reg *prometheus.Registry

	iterations    *prometheus.CounterVec
	iterationTime prometheus.Histogram
	sweepTime     prometheus.Histogram
	relaxations   prometheus.Histogram
	quotes        prometheus.Gauge
	staleQuotes   prometheus.Counter
	vertices      prometheus.Gauge
	edges         prometheus.Gauge
	rawCycles     prometheus.Counter
	truncated     prometheus.Counter
	candidates    prometheus.Gauge
	novel         prometheus.Counter
	bestStake     prometheus.Gauge
	dispatches    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "iterations_total",
			Help: "Orchestrator iterations by result.",
		}, []string{"result"}),
		iterationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "iteration_duration_seconds",
			Help:    "Wall time of one refresh-to-dispatch pass.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		sweepTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sweep_duration_seconds",
			Help:    "Wall time of the negative cycle sweep over all sources.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		relaxations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sweep_relaxations",
			Help:    "Successful edge relaxations per sweep.",
			Buckets: prometheus.ExponentialBuckets(16, 4, 10),
		}),
		quotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "graph_quotes",
			Help: "Fresh quotes the last graph was built from.",
		}),
		staleQuotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stale_quotes_total",
			Help: "Quotes left out of a graph for being older than the watermark.",
		}),
		vertices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "graph_vertices",
			Help: "Assets in the last graph.",
		}),
		edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "graph_edges",
			Help: "Directed edges in the last graph.",
		}),
		rawCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "raw_cycles_total",
			Help: "Negative cycles reported by the engine before deduplication.",
		}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "truncated_sweeps_total",
			Help: "Sources whose run hit the relaxation cap.",
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "candidates",
			Help: "Ranked arbitrage candidates of the last iteration.",
		}),
		novel: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "novel_candidates_total",
			Help: "Candidates never reported before by any instance.",
		}),
		bestStake: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "best_final_stake",
			Help: "Final stake of the top candidate, 0 when there is none.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatches_total",
			Help: "Dispatch rounds by result.",
		}, []string{"result"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.iterations, m.iterationTime, m.sweepTime, m.relaxations,
		m.quotes, m.staleQuotes, m.vertices, m.edges,
		m.rawCycles, m.truncated, m.candidates, m.novel, m.bestStake,
		m.dispatches,
	)

	return m
}

func (m *Metrics) ObserveIteration(it *service.Iteration) {
	m.iterationTime.Observe(it.FinishedAt.Sub(it.StartedAt).Seconds())

	switch {
	case it.Err == nil:
		m.iterations.WithLabelValues("ok").Inc()
	case errors.Is(it.Err, service.ErrEmptyStore):
		m.iterations.WithLabelValues("empty").Inc()
	default:
		m.iterations.WithLabelValues("error").Inc()
	}

	m.staleQuotes.Add(float64(it.StaleDropped))
	if it.Graph == nil {
		return
	}

	m.quotes.Set(float64(it.Quotes))
	m.vertices.Set(float64(it.Graph.V()))
	m.edges.Set(float64(it.Graph.E()))
	m.sweepTime.Observe(it.Sweep.Duration.Seconds())
	m.relaxations.Observe(float64(it.Sweep.Relaxations))
	m.truncated.Add(float64(it.Sweep.Truncated))
	m.rawCycles.Add(float64(it.Resolve.Raw))
	m.candidates.Set(float64(len(it.Arbitrages)))
	m.novel.Add(float64(it.Novel))

	best := 0.0
	if len(it.Arbitrages) > 0 {
		best = it.Arbitrages[0].FinalStake
	}
	m.bestStake.Set(best)

	if it.Dispatch != nil || it.DispatchErr != nil {
		m.dispatches.WithLabelValues(dispatchResult(it)).Inc()
	}
}

func dispatchResult(it *service.Iteration) string {
	switch {
	case it.DispatchErr != nil:
		return "skipped_or_failed"
	case it.Dispatch.Execution != nil && it.Dispatch.Execution.Fake:
		return "fake"
	default:
		return "executed"
	}
}

// RegisterIngest exposes the counters of an ingestion pipeline
func (m *Metrics) RegisterIngest(source string, accepted, dropped func() uint64) error {
	labels := prometheus.Labels{"source": source}

	acc := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Name: "ingested_quotes_total",
		Help: "Quotes accepted into the store.", ConstLabels: labels,
	}, func() float64 { return float64(accepted()) })

	drop := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Name: "dropped_quotes_total",
		Help: "Quotes rejected at ingestion.", ConstLabels: labels,
	}, func() float64 { return float64(dropped()) })

	if err := m.reg.Register(acc); err != nil {
		return err
	}
	return m.reg.Register(drop)
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
