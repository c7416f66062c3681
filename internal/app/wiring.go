package app

import (
	"context"
	httpapi "dexarb/internal/api/http"
	"dexarb/internal/config"
	"dexarb/internal/dedupe"
	dedupeRedis "dexarb/internal/dedupe/redis"
	"dexarb/internal/domain"
	"dexarb/internal/execution"
	"dexarb/internal/ingest"
	"dexarb/internal/metrics"
	"dexarb/internal/negcycle"
	"dexarb/internal/pubsub/nats"
	"dexarb/internal/quotes"
	"dexarb/internal/security"
	"dexarb/internal/service"
	"dexarb/internal/stores/clickhouse"
	"dexarb/internal/stores/redis"
	"fmt"
	"strings"

	"github.com/grafana/pyroscope-go"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

type Container struct {
	app *App
	log logger.Logger

	// infra
	redis    *redis.Client
	ch       *clickhouse.Conn
	chWriter *clickhouse.Writer
	nc       *nats.Client
	journal  *execution.FileJournal
	memDedup *dedupe.Memory

	// services
	store        *quotes.ShardedStore
	orchestrator *service.Orchestrator
	httpSrv      *httpapi.Server

	// metrics
	metrics  *metrics.Metrics
	profiler *pyroscope.Profiler
}

func (c *Container) Start() error {
	return c.app.Start()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

// Build constructs every component from cfg; the returned cleanup releases infra
// in reverse order and is safe to call after Stop
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	c := &Container{log: lg}
	var closers []func(context.Context)
	cleanup := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](ctxClean)
		}
		lg.Info("Successfully cleaned up dependency")
	}
	fail := func(err error) (*Container, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	// Profiler
	profiler, err := metrics.InitPProf(&cfg.Metrics.Pyroscope, cfg.App.InstanceID)
	if err != nil {
		return fail(fmt.Errorf("pyroscope: %w", err))
	}
	if profiler != nil {
		c.profiler = profiler
		closers = append(closers, func(context.Context) {
			if err := profiler.Stop(); err != nil {
				lg.Errorf("Failed to stop profiler: %v", err)
			}
		})
		lg.Infof("Successfully initialize Pyroscope to %s", cfg.Metrics.Pyroscope.ServerAddr)
	}

	c.metrics = metrics.New()
	checks := map[string]service.HealthChecker{}

	// Redis client
	if cfg.Stores.Redis.Enabled {
		if c.redis, err = redis.New(ctx, &cfg.Stores.Redis); err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		closers = append(closers, func(context.Context) {
			if err := c.redis.Close(); err != nil {
				lg.Errorf("Failed to close redis client: %v", err)
			}
		})
		checks["redis"] = c.redis
		lg.Infof("Successfully initialize redis client, addr=%s", cfg.Stores.Redis.Addr)
	}

	// Quote store
	scheme, err := domain.ParseKeyScheme(cfg.Ingest.Scheme)
	if err != nil {
		return fail(err)
	}
	c.store = quotes.NewShardedStore(lg, scheme, cfg.Ingest.Shards)

	var snapshots service.SnapshotSaver
	if c.redis != nil && cfg.App.SnapshotInterval > 0 {
		snap, err := quotes.NewRedisSnapshotter(lg, c.redis, cfg.App.SnapshotKey, cfg.App.SnapshotTTL)
		if err != nil {
			return fail(err)
		}
		n, err := snap.Restore(ctx, c.store)
		if err != nil {
			lg.Warnf("Warm start skipped: %v", err)
		} else {
			lg.Infof("Warm start restored %d quotes from %s", n, cfg.App.SnapshotKey)
		}
		snapshots = snap
	}

	// Ingestion
	var (
		refresher service.Refresher
		sink      ingest.Sink = c.store
		workers   []Worker
	)

	newIngestor := func(source string) (*ingest.Ingestor, error) {
		ing := ingest.NewIngestor(lg.WithField("source", source), c.store)
		if err := c.metrics.RegisterIngest(source, ing.Accepted, ing.Dropped); err != nil {
			return nil, fmt.Errorf("register %s ingest metrics: %w", source, err)
		}
		return ing, nil
	}

	if cfg.Ingest.REST.Enabled {
		ing, err := newIngestor("rest")
		if err != nil {
			return fail(err)
		}
		poller, err := ingest.NewPoolsPoller(lg, ingest.PollerConfig{
			URL:            cfg.Ingest.REST.URL,
			ChainID:        cfg.Ingest.REST.ChainID,
			IDMode:         cfg.Ingest.IDMode,
			Timeout:        cfg.Ingest.REST.Timeout,
			RequestsPerSec: cfg.Ingest.REST.RequestsPerS,
		})
		if err != nil {
			return fail(err)
		}
		refresher, sink = poller, ing
		lg.Infof("Successfully initialize REST poller, url=%s", cfg.Ingest.REST.URL)
	}

	if cfg.Ingest.Feed.Enabled {
		ing, err := newIngestor("feed")
		if err != nil {
			return fail(err)
		}
		feed, err := ingest.NewFeedSource(lg, ingest.FeedConfig{
			URL:            cfg.Ingest.Feed.URL,
			ChainID:        cfg.Ingest.Feed.ChainID,
			IDMode:         cfg.Ingest.IDMode,
			PingInterval:   cfg.Ingest.Feed.PingInterval,
			ReadTimeout:    cfg.Ingest.Feed.ReadTimeout,
			ReconnectMin:   cfg.Ingest.Feed.ReconnectMin,
			ReconnectMax:   cfg.Ingest.Feed.ReconnectMax,
			ReadLimitBytes: cfg.Ingest.Feed.ReadLimitBytes,
		})
		if err != nil {
			return fail(err)
		}
		workers = append(workers, Worker{Name: "feed", Run: func(ctx context.Context) error { return feed.Run(ctx, ing) }})
		lg.Infof("Successfully initialize websocket feed, url=%s", cfg.Ingest.Feed.URL)
	}

	if cfg.Ingest.Kafka.Enabled {
		ing, err := newIngestor("kafka")
		if err != nil {
			return fail(err)
		}
		src, err := ingest.NewKafkaSource(lg, cfg.Ingest.Kafka, cfg.Ingest.IDMode, cfg.Ingest.Kafka.ChainID)
		if err != nil {
			return fail(err)
		}
		workers = append(workers, Worker{Name: "kafka", Run: func(ctx context.Context) error { return src.Run(ctx, ing) }})
		lg.Infof("Successfully initialize %s consumer, topic=%s", cfg.Ingest.Kafka.BrokerType, cfg.Ingest.Kafka.Topic)
	}

	deps := service.Deps{Store: c.store, Sink: sink, Refresher: refresher, Snapshots: snapshots, Observer: c.metrics, Checks: checks}

	// NATS Broadcaster
	if cfg.PubSub.NATS.Enabled {
		if c.nc, err = nats.Connect(lg, &cfg.PubSub.NATS); err != nil {
			return fail(fmt.Errorf("nats: %w", err))
		}
		closers = append(closers, func(context.Context) {
			if err := c.nc.Close(); err != nil {
				lg.Errorf("Failed to close nats client: %v", err)
			}
		})
		deps.Broadcaster = c.nc
		checks["nats"] = c.nc
	}

	// Novelty bloom
	if cfg.Dedupe.Bloom.Enabled && c.redis != nil {
		bloom, err := dedupeRedis.NewBloom(&cfg.Dedupe.Bloom, c.redis)
		if err != nil {
			return fail(err)
		}
		if err = bloom.Ensure(ctx); err != nil {
			lg.Warnf("Bloom filter unavailable, novelty counting disabled: %v", err)
		} else {
			deps.Novelty = bloom
			lg.Infof("Successfully initialize Bloom by key=%s, cap=%d, errRate=%f", bloom.Key, bloom.Capacity, bloom.ErrRate)
		}
	}

	// Execution
	if cfg.Execution.Enabled {
		dispatcher, err := c.buildDispatcher(ctx, cfg, &closers)
		if err != nil {
			return fail(err)
		}
		deps.Dispatcher = dispatcher
		if c.ch != nil {
			checks["clickhouse"] = c.ch
		}
	}

	// Orchestrator
	c.orchestrator, err = service.NewOrchestrator(lg, deps, service.Options{
		Mode:     cfg.Scanner.Mode,
		Interval: cfg.Scanner.Interval,
		Scheme:   scheme,
		Engine: negcycle.Options{
			Threshold:      cfg.Scanner.Threshold,
			MaxRelaxations: cfg.Scanner.MaxRelaxations,
		},
		SweepTimeout:     cfg.Scanner.SweepTimeout,
		MaxAge:           cfg.Ingest.Stale.MaxAge,
		BaseCurrencies:   cfg.Scanner.BaseCurrencies,
		SnapshotInterval: cfg.App.SnapshotInterval,
	})
	if err != nil {
		return fail(err)
	}
	workers = append([]Worker{{Name: "orchestrator", Run: c.orchestrator.Run}}, workers...)
	lg.Infof("Successfully initialize orchestrator, mode=%s", c.orchestrator.Mode())

	// JWT verifier
	var verifier *security.RS256Verifier
	if cfg.Security.JWT.Enabled {
		if verifier, err = security.NewRS256Verifier(&cfg.Security.JWT); err != nil {
			return fail(fmt.Errorf("jwt verifier: %w", err))
		}
		lg.Info("Successfully initialize JWT-Verifier")
	}

	// HTTP Server
	c.httpSrv, err = httpapi.NewServer(&httpapi.ServerDeps{
		Logger:   lg,
		Cfg:      cfg,
		Rdb:      c.redis,
		Verifier: verifier,
		Scanner:  c.orchestrator,
		Metrics:  c.metrics.Handler(),
	})
	if err != nil {
		return fail(err)
	}
	lg.Infof("Successfully initialize HTTP server, addr=%s", cfg.API.HTTP.Addr)

	c.app = New(lg, c.httpSrv, workers...)

	lg.Info("Successfully initialize Wiring")
	return c, cleanup, nil
}

// buildDispatcher wires the simulate/execute client with its cooldown and execution journals
func (c *Container) buildDispatcher(ctx context.Context, cfg *config.Config, closers *[]func(context.Context)) (*execution.Dispatcher, error) {
	lg := c.log

	client, err := execution.NewHTTPClient(execution.HTTPClientConfig{
		SimulateURL:    cfg.Execution.SimulateURL,
		ExecuteURL:     cfg.Execution.ExecuteURL,
		Timeout:        cfg.Execution.Timeout,
		RequestsPerSec: cfg.Execution.RequestsPerSec,
	})
	if err != nil {
		return nil, err
	}

	var cooldown dedupe.Deduper
	switch cfg.Dedupe.Backend {
	case "redis":
		cd, err := dedupeRedis.NewCooldown(lg, &cfg.Dedupe, c.redis)
		if err != nil {
			return nil, err
		}
		cooldown = cd
		lg.Infof("Successfully initialize redis cooldown, ttl=%s", cfg.Dedupe.TTL)
	default:
		c.memDedup = dedupe.NewMemory(lg, cfg.Dedupe.TTL, cfg.Dedupe.JanitorEvery)
		*closers = append(*closers, func(context.Context) { c.memDedup.Close() })
		cooldown = c.memDedup
	}

	var sinks execution.TeeLog
	if cfg.Execution.JournalPath != "" {
		if c.journal, err = execution.OpenFileJournal(cfg.Execution.JournalPath); err != nil {
			return nil, err
		}
		*closers = append(*closers, func(context.Context) {
			if err := c.journal.Close(); err != nil {
				lg.Errorf("Failed to close execution journal: %v", err)
			}
		})
		sinks = append(sinks, c.journal)
	}

	if cfg.Stores.ClickHouse.Enabled {
		if c.ch, err = clickhouse.New(ctx, &cfg.Stores.ClickHouse); err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		*closers = append(*closers, func(context.Context) {
			if err := c.ch.Close(); err != nil {
				lg.Errorf("Failed to close clickhouse client: %v", err)
			}
		})
		if err = c.ch.EnsureSchema(ctx); err != nil {
			return nil, err
		}

		if c.chWriter, err = clickhouse.NewWriter(lg, c.ch.Native, cfg.Stores.ClickHouse.Writer); err != nil {
			return nil, err
		}
		*closers = append(*closers, func(ctx context.Context) {
			if err := c.chWriter.Close(ctx); err != nil {
				lg.Errorf("Failed to close clickhouse writer: %v", err)
			}
		})
		sinks = append(sinks, c.chWriter)
		lg.Infof("Successfully initialize clickhouse writer, url=%s", strings.Split(cfg.Stores.ClickHouse.DSN, "?")[0])
	}

	var journal execution.Log
	switch len(sinks) {
	case 0:
	case 1:
		journal = sinks[0]
	default:
		journal = sinks
	}

	return execution.NewDispatcher(lg, client, client, journal, cooldown, execution.DispatcherConfig{
		StartVolume: cfg.Execution.StartVolume,
		Currency:    cfg.Execution.Currency,
	}), nil
}
