package service

import (
	"dexarb/internal/domain"
	"dexarb/internal/execution"
	"dexarb/internal/graph"
	"dexarb/internal/ingest"
	"dexarb/internal/negcycle"
	"dexarb/internal/resolver"
	"time"
)

type State int32

const (
	StateIdle State = iota
	StateRefreshing
	StateGraphBuilding
	StateScanning
	StateResolving
	StateDispatching
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateGraphBuilding:
		return "graph_building"
	case StateScanning:
		return "scanning"
	case StateResolving:
		return "resolving"
	case StateDispatching:
		return "dispatching"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Iteration is everything one pass produced; it is never mutated after publication
type Iteration struct {
	Seq        uint64
	StartedAt  time.Time
	FinishedAt time.Time

	Refresh      ingest.Batch
	Quotes       int
	StaleDropped int

	Graph      *graph.EdgeWeightedDigraph
	Index      *graph.VertexIndex
	Cycles     [][]graph.DirectedEdge
	Sweep      negcycle.SweepStats
	Resolve    resolver.Stats
	Arbitrages []domain.Arbitrage
	Novel      int

	Dispatch    *execution.Outcome
	DispatchErr error
	Err         error
}

// Summary is the JSON view served by the API and broadcast over NATS
type Summary struct {
	Seq          uint64  `json:"seq"`
	StartedAt    string  `json:"started_at"`
	DurationMs   int64   `json:"duration_ms"`
	Quotes       int     `json:"quotes"`
	StaleDropped int     `json:"stale_dropped"`
	Vertices     int     `json:"vertices"`
	Edges        int     `json:"edges"`
	Sources      int     `json:"sources"`
	Relaxations  int     `json:"relaxations"`
	Truncated    int     `json:"truncated"`
	RawCycles    int     `json:"raw_cycles"`
	Duplicates   int     `json:"duplicates"`
	Candidates   int     `json:"candidates"`
	Novel        int     `json:"novel"`
	BestStake    float64 `json:"best_final_stake,omitempty"`
	Executed     string  `json:"executed,omitempty"` // arbitrage hash
	Error        string  `json:"error,omitempty"`
	DispatchErr  string  `json:"dispatch_error,omitempty"`
}

func (it *Iteration) Summary() Summary {
	s := Summary{
		Seq:          it.Seq,
		StartedAt:    it.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:   it.FinishedAt.Sub(it.StartedAt).Milliseconds(),
		Quotes:       it.Quotes,
		StaleDropped: it.StaleDropped,
		Sources:      it.Sweep.Sources,
		Relaxations:  it.Sweep.Relaxations,
		Truncated:    it.Sweep.Truncated,
		RawCycles:    it.Resolve.Raw,
		Duplicates:   it.Resolve.Duplicates,
		Candidates:   len(it.Arbitrages),
		Novel:        it.Novel,
	}
	if it.Graph != nil {
		s.Vertices = it.Graph.V()
		s.Edges = it.Graph.E()
	}
	if len(it.Arbitrages) > 0 {
		s.BestStake = it.Arbitrages[0].FinalStake
	}
	if it.Dispatch != nil && it.Dispatch.Execution != nil && it.DispatchErr == nil {
		s.Executed = it.Dispatch.Best.Hash
	}
	if it.Err != nil {
		s.Error = it.Err.Error()
	}
	if it.DispatchErr != nil {
		s.DispatchErr = it.DispatchErr.Error()
	}
	return s
}

// Candidates is the NATS payload for ranked arbitrages
type Candidates struct {
	Seq        uint64             `json:"seq"`
	Arbitrages []domain.Arbitrage `json:"arbitrages"`
}
