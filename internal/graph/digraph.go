package graph

import "fmt"

// Adjacency list digraph, rebuilt from scratch every iteration
type EdgeWeightedDigraph struct {
	v   int
	e   int
	adj [][]DirectedEdge
}

func NewEdgeWeightedDigraph(v int) *EdgeWeightedDigraph {
	if v < 0 {
		panic("number of vertices must be non-negative")
	}

	return &EdgeWeightedDigraph{
		v:   v,
		adj: make([][]DirectedEdge, v),
	}
}

func (g *EdgeWeightedDigraph) V() int { return g.v }

func (g *EdgeWeightedDigraph) E() int { return g.e }

func (g *EdgeWeightedDigraph) AddEdge(e DirectedEdge) {
	g.validateVertex(e.From)
	g.validateVertex(e.To)

	g.adj[e.From] = append(g.adj[e.From], e)
	g.e++
}

// Adj returns outgoing edges of v, callers must not modify it
func (g *EdgeWeightedDigraph) Adj(v int) []DirectedEdge {
	g.validateVertex(v)
	return g.adj[v]
}

func (g *EdgeWeightedDigraph) OutDegree(v int) int {
	g.validateVertex(v)
	return len(g.adj[v])
}

func (g *EdgeWeightedDigraph) Edges() []DirectedEdge {
	out := make([]DirectedEdge, 0, g.e)
	for v := 0; v < g.v; v++ {
		out = append(out, g.adj[v]...)
	}
	return out
}

func (g *EdgeWeightedDigraph) validateVertex(v int) {
	if v < 0 || v >= g.v {
		panic(fmt.Sprintf("vertex %d is not between 0 and %d", v, g.v-1))
	}
}
