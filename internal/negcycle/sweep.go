package negcycle

import (
	"context"
	"dexarb/internal/graph"
	"time"
)

type SweepStats struct {
	Sources     int
	Skipped     int // sources without outgoing edges
	Cycles      int
	Relaxations int
	Truncated   int
	Duration    time.Duration
}

// Sweep runs the engine from every vertex, the graph may have several components.
// ctx is checked between sources; on cancellation the cycles found so far are returned with ctx.Err().
func Sweep(ctx context.Context, g *graph.EdgeWeightedDigraph, opts Options) ([][]graph.DirectedEdge, SweepStats, error) {
	start := time.Now()
	stats := SweepStats{}
	var cycles [][]graph.DirectedEdge

	for s := 0; s < g.V(); s++ {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return cycles, stats, err
		}

		if g.OutDegree(s) == 0 {
			stats.Skipped++
			continue
		}

		sp := New(g, s, opts)
		stats.Sources++
		stats.Relaxations += sp.Cost()
		if sp.Truncated() {
			stats.Truncated++
		}
		if sp.HasNegativeCycle() {
			stats.Cycles++
			cycles = append(cycles, sp.NegativeCycle())
		}
	}

	stats.Duration = time.Since(start)
	return cycles, stats, nil
}
