package negcycle

import (
	"dexarb/internal/graph"
	"math"
)

/*
	Queue based Bellman-Ford (SPFA) from a single source.
	Every V relaxations the predecessor graph is checked for a cycle; any cycle there is negative,
	so the run stops as soon as one shows up.
*/

// DefaultThreshold is in log space. A pool quoted as p and 1/p closes a two-hop loop whose
// weight rounds to a few ulps below zero, the threshold keeps such loops out of the predecessor graph.
const DefaultThreshold = 1e-9

type Options struct {
	// Threshold: a relaxation must improve a distance by more than this and a reported cycle
	// must weigh less than -Threshold. 0 -> DefaultThreshold
	Threshold float64
	// MaxRelaxations caps the run, 0 -> V*(E+1)+V
	MaxRelaxations int
}

// Epsilon is the effective threshold, callers that judge profit outside the engine use the same one
func (o Options) Epsilon() float64 {
	if o.Threshold <= 0 {
		return DefaultThreshold
	}
	return o.Threshold
}

type BellmanFordSP struct {
	g      *graph.EdgeWeightedDigraph
	source int
	opts   Options

	distTo  []float64
	edgeTo  []graph.DirectedEdge
	hasEdge []bool
	onQueue []bool
	queue   *fifo

	cost      int
	truncated bool
	cycle     []graph.DirectedEdge

	stamp []int32 // walk marks of the predecessor scan
	walk  int32
}

func New(g *graph.EdgeWeightedDigraph, source int, opts Options) *BellmanFordSP {
	v := g.V()
	if source < 0 || source >= v {
		panic("source vertex is out of range")
	}
	if opts.MaxRelaxations <= 0 {
		opts.MaxRelaxations = v*(g.E()+1) + v
	}
	opts.Threshold = opts.Epsilon()

	sp := &BellmanFordSP{
		g:       g,
		source:  source,
		opts:    opts,
		distTo:  make([]float64, v),
		edgeTo:  make([]graph.DirectedEdge, v),
		hasEdge: make([]bool, v),
		onQueue: make([]bool, v),
		queue:   newFIFO(v),
		stamp:   make([]int32, v),
	}
	for i := range sp.distTo {
		sp.distTo[i] = math.Inf(1)
	}

	sp.distTo[source] = 0
	sp.queue.push(source)
	sp.onQueue[source] = true

	for !sp.queue.empty() && !sp.HasNegativeCycle() && !sp.truncated {
		u := sp.queue.pop()
		sp.onQueue[u] = false
		sp.relax(u)
	}

	return sp
}

func (sp *BellmanFordSP) relax(u int) {
	for _, e := range sp.g.Adj(u) {
		w := e.To
		if !(sp.distTo[u]+e.Weight < sp.distTo[w]-sp.opts.Threshold) {
			continue
		}

		sp.distTo[w] = sp.distTo[u] + e.Weight
		sp.edgeTo[w] = e
		sp.hasEdge[w] = true
		if !sp.onQueue[w] {
			sp.queue.push(w)
			sp.onQueue[w] = true
		}

		sp.cost++
		if sp.cost%sp.g.V() == 0 {
			sp.findNegativeCycle()
			if sp.HasNegativeCycle() {
				return
			}
		}
		if sp.cost >= sp.opts.MaxRelaxations {
			sp.findNegativeCycle()
			sp.truncated = !sp.HasNegativeCycle()
			return
		}
	}
}

// findNegativeCycle walks edgeTo backwards from every vertex. Meeting a vertex stamped by
// the current walk closes a cycle; meeting one stamped by an earlier walk of this scan ends
// the walk, so the whole scan is O(V).
func (sp *BellmanFordSP) findNegativeCycle() {
	v := sp.g.V()
	if sp.walk > math.MaxInt32-int32(v)-1 {
		for i := range sp.stamp {
			sp.stamp[i] = 0
		}
		sp.walk = 0
	}
	base := sp.walk + 1

	for start := 0; start < v; start++ {
		if !sp.hasEdge[start] || sp.stamp[start] >= base {
			continue
		}

		sp.walk++
		x := start
		closed := false
		for {
			if sp.stamp[x] == sp.walk {
				closed = true
				break
			}
			if sp.stamp[x] >= base || !sp.hasEdge[x] {
				break
			}
			sp.stamp[x] = sp.walk
			x = sp.edgeTo[x].From
		}
		if !closed {
			continue
		}

		cycle := sp.extract(x)
		if weightOf(cycle) < -sp.opts.Threshold {
			sp.cycle = cycle
			return
		}
	}
}

// extract returns the predecessor cycle through x in traversal order
func (sp *BellmanFordSP) extract(x int) []graph.DirectedEdge {
	var rev []graph.DirectedEdge
	at := x
	for {
		e := sp.edgeTo[at]
		rev = append(rev, e)
		at = e.From
		if at == x {
			break
		}
	}
	return reversed(rev)
}

func (sp *BellmanFordSP) Source() int { return sp.source }

func (sp *BellmanFordSP) HasNegativeCycle() bool {
	return sp.cycle != nil
}

// NegativeCycle returns the cycle edges in traversal order, nil if none
func (sp *BellmanFordSP) NegativeCycle() []graph.DirectedEdge {
	return sp.cycle
}

// Cost is the number of successful relaxations
func (sp *BellmanFordSP) Cost() int { return sp.cost }

// Truncated reports that the relaxation cap stopped the run before convergence
func (sp *BellmanFordSP) Truncated() bool { return sp.truncated }

func (sp *BellmanFordSP) DistTo(v int) float64 {
	if sp.HasNegativeCycle() {
		panic("negative cost cycle exists")
	}
	return sp.distTo[v]
}

func (sp *BellmanFordSP) HasPathTo(v int) bool {
	return !math.IsInf(sp.distTo[v], 1)
}

func (sp *BellmanFordSP) PathTo(v int) []graph.DirectedEdge {
	if sp.HasNegativeCycle() {
		panic("negative cost cycle exists")
	}
	if !sp.HasPathTo(v) {
		return nil
	}

	var rev []graph.DirectedEdge
	for x := v; sp.hasEdge[x] && x != sp.source && len(rev) < sp.g.V(); x = sp.edgeTo[x].From {
		rev = append(rev, sp.edgeTo[x])
	}
	return reversed(rev)
}

func weightOf(cycle []graph.DirectedEdge) float64 {
	sum := 0.0
	for _, e := range cycle {
		sum += e.Weight
	}
	return sum
}

func reversed(in []graph.DirectedEdge) []graph.DirectedEdge {
	out := make([]graph.DirectedEdge, len(in))
	for i := range in {
		out[i] = in[len(in)-1-i]
	}
	return out
}

type fifo struct {
	buf  []int
	head int
}

func newFIFO(capacity int) *fifo {
	return &fifo{buf: make([]int, 0, capacity)}
}

func (q *fifo) push(v int) { q.buf = append(q.buf, v) }

func (q *fifo) pop() int {
	v := q.buf[q.head]
	q.head++
	if q.head > 1024 && q.head*2 > len(q.buf) {
		n := copy(q.buf, q.buf[q.head:])
		q.buf = q.buf[:n]
		q.head = 0
	}
	return v
}

func (q *fifo) empty() bool { return q.head == len(q.buf) }
