package service

import (
	"context"
	"dexarb/internal/config"
	"dexarb/internal/domain"
	"dexarb/internal/execution"
	"dexarb/internal/graph"
	"dexarb/internal/ingest"
	"dexarb/internal/negcycle"
	"dexarb/internal/pubsub"
	"dexarb/internal/quotes"
	"dexarb/internal/resolver"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

var (
	ErrEmptyStore  = errors.New("quote store is empty")
	ErrNoIteration = errors.New("no iteration has completed yet")
)

type Refresher interface {
	Refresh(ctx context.Context, sink ingest.Sink) (ingest.Batch, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, arbs []domain.Arbitrage) (*execution.Outcome, error)
}

// NoveltyFilter counts hashes never reported before
type NoveltyFilter interface {
	Novel(ctx context.Context, hashes []string) (int, error)
}

type SnapshotSaver interface {
	Save(ctx context.Context, store quotes.Store) error
}

// Observer is notified after every iteration (metrics)
type Observer interface {
	ObserveIteration(it *Iteration)
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

type Options struct {
	Mode             string
	Interval         time.Duration
	Scheme           domain.KeyScheme
	Engine           negcycle.Options
	SweepTimeout     time.Duration
	MaxAge           time.Duration
	BaseCurrencies   []string
	SnapshotInterval time.Duration
}

// Deps are the collaborators; everything except Store and Sink is optional
type Deps struct {
	Store       quotes.Store
	Sink        ingest.Sink // normally the ingestor in front of Store
	Refresher   Refresher
	Dispatcher  Dispatcher
	Broadcaster pubsub.Broadcaster
	Novelty     NoveltyFilter
	Snapshots   SnapshotSaver
	Observer    Observer
	Checks      map[string]HealthChecker // readiness checks by name
}

// Orchestrator is the outer loop: refresh -> build -> scan -> resolve -> dispatch -> sleep
type Orchestrator struct {
	log  logger.Logger
	deps Deps
	opts Options

	builder   *graph.Builder
	resolver  *resolver.Resolver
	watermark *quotes.Watermark

	state atomic.Int32
	seq   atomic.Uint64

	runMu sync.Mutex // one iteration at a time, loop and on-demand requests share it

	lastMu sync.RWMutex
	last   *Iteration

	now func() time.Time
}

func NewOrchestrator(log logger.Logger, deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("quote store is required to the orchestrator")
	}
	if deps.Sink == nil {
		deps.Sink = deps.Store
	}

	switch opts.Mode {
	case "":
		opts.Mode = config.ModeFullRefresh
	case config.ModeFullRefresh, config.ModeMerge, config.ModeOnDemand:
	default:
		return nil, fmt.Errorf("unknown scanner mode %q", opts.Mode)
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}

	return &Orchestrator{
		log:       log,
		deps:      deps,
		opts:      opts,
		builder:   graph.NewBuilder(opts.Scheme),
		resolver:  resolver.New(log, opts.BaseCurrencies).WithThreshold(opts.Engine.Epsilon()),
		watermark: quotes.NewWatermark(opts.MaxAge),
		now:       time.Now,
	}, nil
}

func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) Mode() string { return o.opts.Mode }

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

// Last returns the most recent finished iteration
func (o *Orchestrator) Last() (*Iteration, error) {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	if o.last == nil {
		return nil, ErrNoIteration
	}
	return o.last, nil
}

// Current serves readers: in on_demand mode it runs a fresh iteration,
// otherwise it returns the last one the loop produced
func (o *Orchestrator) Current(ctx context.Context) (*Iteration, error) {
	if o.opts.Mode == config.ModeOnDemand {
		return o.RunOnce(ctx)
	}
	return o.Last()
}

// Run loops until ctx is done. In on_demand mode there is no timer,
// iterations are triggered through Current.
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	if o.deps.Snapshots != nil && o.opts.SnapshotInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.snapshotLoop(ctx)
		}()
	}

	o.log.Infof("Orchestrator started, mode=%s interval=%s", o.opts.Mode, o.opts.Interval)

	if o.opts.Mode == config.ModeOnDemand {
		o.setState(StateSleeping)
		<-ctx.Done()
		o.setState(StateIdle)
		return nil
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.setState(StateIdle)
			o.log.Info("Orchestrator stopped")
			return nil
		case <-timer.C:
		}

		if _, err := o.RunOnce(ctx); err != nil && ctx.Err() == nil {
			o.log.Warnf("Iteration skipped, error=%v", err)
		}

		o.setState(StateSleeping)
		timer.Reset(o.opts.Interval)
	}
}

// RunOnce executes one full pass. Dispatch failures do not fail the iteration,
// they are recorded in Iteration.DispatchErr.
func (o *Orchestrator) RunOnce(ctx context.Context) (*Iteration, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	it := &Iteration{Seq: o.seq.Add(1), StartedAt: o.now()}
	defer o.finish(it)

	// Refreshing
	o.setState(StateRefreshing)
	if err := o.refresh(ctx, it); err != nil {
		it.Err = err
		return it, err
	}

	snap := o.deps.Store.Snapshot()
	o.watermark.Advance(o.now())
	fresh, stale := o.watermark.Fresh(snap)
	it.Quotes, it.StaleDropped = len(fresh), stale
	if len(fresh) == 0 {
		it.Err = ErrEmptyStore
		return it, ErrEmptyStore
	}

	// GraphBuilding
	o.setState(StateGraphBuilding)
	it.Graph, it.Index = o.builder.Build(fresh)

	// Scanning
	o.setState(StateScanning)
	cycles, err := o.scan(ctx, it)
	if err != nil {
		it.Err = err
		return it, err
	}
	it.Cycles = cycles

	// Resolving
	o.setState(StateResolving)
	it.Arbitrages, it.Resolve = o.resolver.Resolve(cycles)
	o.countNovel(ctx, it)

	o.log.Infof("Iteration %d: quotes=%d vertices=%d edges=%d cycles=%d candidates=%d",
		it.Seq, it.Quotes, it.Graph.V(), it.Graph.E(), it.Resolve.Raw, len(it.Arbitrages))

	if len(it.Arbitrages) > 0 {
		o.publish(ctx, pubsub.SubjectArbitrages, Candidates{Seq: it.Seq, Arbitrages: it.Arbitrages})
	}

	// Dispatching
	if o.deps.Dispatcher != nil && len(it.Arbitrages) > 0 {
		o.setState(StateDispatching)
		o.dispatch(ctx, it)
	}

	return it, nil
}

func (o *Orchestrator) refresh(ctx context.Context, it *Iteration) error {
	if o.deps.Refresher == nil || o.opts.Mode == config.ModeOnDemand {
		return nil // push ingestion keeps the store current
	}

	if o.opts.Mode == config.ModeFullRefresh {
		o.deps.Store.Clear()
	}

	batch, err := o.deps.Refresher.Refresh(ctx, o.deps.Sink)
	it.Refresh = batch
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// a sweep deadline keeps the partial result; parent cancellation aborts the iteration
func (o *Orchestrator) scan(ctx context.Context, it *Iteration) ([][]graph.DirectedEdge, error) {
	sctx := ctx
	if o.opts.SweepTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, o.opts.SweepTimeout)
		defer cancel()
	}

	cycles, stats, err := negcycle.Sweep(sctx, it.Graph, o.opts.Engine)
	it.Sweep = stats
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.log.Warnf("Sweep cut by timeout after %d/%d sources, keeping %d cycles", stats.Sources, it.Graph.V(), len(cycles))
	}
	if stats.Truncated > 0 {
		o.log.Warnf("Relaxation cap hit from %d sources", stats.Truncated)
	}

	return cycles, nil
}

func (o *Orchestrator) countNovel(ctx context.Context, it *Iteration) {
	if o.deps.Novelty == nil || len(it.Arbitrages) == 0 {
		return
	}

	hashes := make([]string, len(it.Arbitrages))
	for i := range it.Arbitrages {
		hashes[i] = it.Arbitrages[i].Hash
	}

	n, err := o.deps.Novelty.Novel(ctx, hashes)
	if err != nil {
		o.log.Debugf("Novelty filter unavailable, error=%v", err)
		return
	}
	it.Novel = n
}

func (o *Orchestrator) dispatch(ctx context.Context, it *Iteration) {
	out, err := o.deps.Dispatcher.Dispatch(ctx, it.Arbitrages)
	it.Dispatch, it.DispatchErr = out, err

	switch {
	case err == nil:
		o.publish(ctx, pubsub.SubjectExecutions, out.Execution)
	case errors.Is(err, execution.ErrNoProfitable), errors.Is(err, execution.ErrCoolingDown):
		o.log.Infof("Iteration %d: nothing executed, %v", it.Seq, err)
	default:
		o.log.Errorf("Iteration %d: dispatch failed, error=%v", it.Seq, err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, subject string, payload any) {
	if o.deps.Broadcaster == nil {
		return
	}
	// broadcast is best effort, subscribers catch up on the next iteration
	if err := o.deps.Broadcaster.Publish(ctx, subject, payload); err != nil {
		o.log.Errorf("Failed to broadcast %s, error=%v", subject, err)
	}
}

func (o *Orchestrator) finish(it *Iteration) {
	it.FinishedAt = o.now()

	if it.Err == nil {
		o.lastMu.Lock()
		o.last = it
		o.lastMu.Unlock()
	}
	if o.deps.Observer != nil {
		o.deps.Observer.ObserveIteration(it)
	}
	o.setState(StateIdle)
}

func (o *Orchestrator) snapshotLoop(ctx context.Context) {
	t := time.NewTicker(o.opts.SnapshotInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := o.deps.Snapshots.Save(ctx, o.deps.Store); err != nil {
				o.log.Warnf("Quote snapshot not saved, error=%v", err)
			}
		}
	}
}

// CheckDependency reports every unhealthy collaborator at once
func (o *Orchestrator) CheckDependency(ctx context.Context) error {
	failed := make([]string, 0, len(o.deps.Checks))

	for name, c := range o.deps.Checks {
		if c == nil {
			continue
		}
		if err := c.Health(ctx); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("dependency check failed: %s", strings.Join(failed, "; "))
	}

	o.log.Debug("All dependency checks passed")
	return nil
}
