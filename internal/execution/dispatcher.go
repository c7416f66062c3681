package execution

import (
	"context"
	"dexarb/internal/dedupe"
	"dexarb/internal/domain"
	"dexarb/internal/pricing"
	"errors"
	"fmt"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

var (
	ErrNoCandidates   = errors.New("no candidates to dispatch")
	ErrNoProfitable   = errors.New("no candidate simulated with positive profit")
	ErrCoolingDown    = errors.New("best candidate is cooling down")
	ErrExecutionError = errors.New("executor reported an error")
)

type DispatcherConfig struct {
	StartVolume float64
	Currency    string
}

// Outcome of one dispatch round
type Outcome struct {
	Simulated  int
	Failed     int
	Best       *domain.Arbitrage
	Simulation *domain.SimulationResponse
	Request    domain.SimulationRequest
	Execution  *domain.ExecutionResponse
}

// Dispatcher simulates ranked candidates and executes the most profitable one
type Dispatcher struct {
	log      logger.Logger
	sim      Simulator
	exec     Executor
	journal  Log            // optional
	cooldown dedupe.Deduper // optional
	cfg      DispatcherConfig
	now      func() time.Time
}

func NewDispatcher(log logger.Logger, sim Simulator, exec Executor, journal Log, cooldown dedupe.Deduper, cfg DispatcherConfig) *Dispatcher {
	if cfg.StartVolume <= 0 {
		cfg.StartVolume = 1
	}
	return &Dispatcher{
		log:      log,
		sim:      sim,
		exec:     exec,
		journal:  journal,
		cooldown: cooldown,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Dispatch returns a partial Outcome together with the error when it gives up
// after simulating, so callers can still report the simulation counters.
func (d *Dispatcher) Dispatch(ctx context.Context, arbs []domain.Arbitrage) (*Outcome, error) {
	if len(arbs) == 0 {
		return nil, ErrNoCandidates
	}

	out := &Outcome{}
	var bestReq domain.SimulationRequest

	for i := range arbs {
		arb := &arbs[i]
		req := d.request(arb, d.cfg.StartVolume)

		resp, err := d.sim.Simulate(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, fmt.Errorf("dispatch abandoned after %d simulations: %w", out.Simulated, ctxErr)
			}
			out.Failed++
			d.log.Warnf("Simulation of arbitrage=%s failed, error=%v", arb.Hash, err)
			continue
		}
		out.Simulated++

		if resp.Error {
			out.Failed++
			d.log.Debugf("Simulator rejected arbitrage=%s: %s", arb.Hash, resp.Message)
			continue
		}
		if out.Simulation == nil || resp.Profit > out.Simulation.Profit {
			out.Best = arb
			out.Simulation = resp
			bestReq = req
		}
	}

	if out.Simulation == nil || out.Simulation.Profit <= 0 {
		return out, ErrNoProfitable
	}

	if d.cooldown != nil {
		seen, err := d.cooldown.Seen(ctx, out.Best.Hash)
		if err != nil {
			d.log.Warnf("Cooldown check for arbitrage=%s failed, executing anyway, error=%v", out.Best.Hash, err)
		} else if seen {
			return out, ErrCoolingDown
		}
	}

	if v := out.Simulation.OptimalVolume; v > 0 {
		bestReq = d.request(out.Best, v)
	}
	out.Request = bestReq

	res, err := d.exec.Execute(ctx, bestReq)
	if err != nil {
		d.release(ctx, out.Best.Hash)
		return out, err
	}
	out.Execution = res

	if res.Error {
		d.release(ctx, out.Best.Hash)
		return out, fmt.Errorf("%w: %s", ErrExecutionError, res.Message)
	}

	d.log.Infof("Executed arbitrage=%s profit=%.6f fake=%v tx=%s", out.Best.Hash, res.Profit, res.Fake, res.TransactionHash)

	if (res.Executed || res.Fake) && d.journal != nil {
		rec := domain.ExecutionRecord{
			ExecutedAt:      d.now().UTC(),
			ArbitrageHash:   out.Best.Hash,
			TransactionHash: res.TransactionHash,
			Fake:            res.Fake,
			Profit:          res.Profit,
			Volume:          bestReq.Volume,
			Currency:        d.cfg.Currency,
			Hops:            out.Best.Hops(),
			Output:          out.Best.Output,
		}
		if err = d.journal.Append(ctx, rec); err != nil {
			d.log.Errorf("Failed to journal execution of arbitrage=%s, error=%v", out.Best.Hash, err)
		}
	}

	return out, nil
}

func (d *Dispatcher) request(arb *domain.Arbitrage, volume float64) domain.SimulationRequest {
	return domain.SimulationRequest{
		Hash:         arb.Hash,
		Exchanges:    arb.Exchanges,
		Addresses:    arb.Addresses,
		Pools:        arb.Pools,
		Output:       arb.Output,
		Volume:       volume,
		VolumeUnits:  pricing.ToBaseUnits(volume, arb.Decimals),
		Decimals:     arb.Decimals,
		DerivedValue: arb.DerivedValue,
	}
}

// a failed execution must not block the next attempt on the same path
func (d *Dispatcher) release(ctx context.Context, hash string) {
	if d.cooldown == nil {
		return
	}
	if err := d.cooldown.Forget(ctx, hash); err != nil {
		d.log.Warnf("Failed to lift cooldown of arbitrage=%s, error=%v", hash, err)
	}
}
