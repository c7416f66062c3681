package graph

import (
	"dexarb/internal/domain"
	"fmt"
)

type Builder struct {
	Scheme domain.KeyScheme
}

func NewBuilder(scheme domain.KeyScheme) *Builder {
	return &Builder{Scheme: scheme}
}

type edgeKey struct {
	from, to string
	quoteID  string
}

// Build turns one quote snapshot into a graph, two directed edges per pool.
// Parallel edges from different pools on the same pair are kept, pools whose sides share a vertex key are skipped.
func (b *Builder) Build(qs []domain.Quote) (*EdgeWeightedDigraph, *VertexIndex) {
	idx := NewVertexIndex(len(qs))
	for i := range qs {
		idx.add(qs[i].Token0.Key(b.Scheme), qs[i].Token0)
		idx.add(qs[i].Token1.Key(b.Scheme), qs[i].Token1)
	}

	g := NewEdgeWeightedDigraph(idx.Len())
	seen := make(map[edgeKey]struct{}, 2*len(qs))

	for i := range qs {
		q := &qs[i]
		b.addDirection(g, idx, seen, q, q.Token0, q.Token1, q.Token0Price)
		b.addDirection(g, idx, seen, q, q.Token1, q.Token0, q.Token1Price)
	}

	return g, idx
}

func (b *Builder) addDirection(
	g *EdgeWeightedDigraph,
	idx *VertexIndex,
	seen map[edgeKey]struct{},
	q *domain.Quote,
	in, out domain.Asset,
	price float64,
) {
	fromKey, toKey := in.Key(b.Scheme), out.Key(b.Scheme)
	// two tokens sharing a symbol collapse to one vertex, a pool between them is not a trade
	if fromKey == toKey {
		return
	}
	k := edgeKey{from: fromKey, to: toKey, quoteID: q.ID}
	if _, dup := seen[k]; dup {
		return
	}
	seen[k] = struct{}{}

	from := mustIndex(idx, fromKey)
	to := mustIndex(idx, toKey)

	// quote provenance travels with the asset copy
	in.Protocol, out.Protocol = q.Protocol, q.Protocol
	in.PoolID, out.PoolID = q.PoolID, q.PoolID
	if in.Exchange == "" {
		in.Exchange = q.Protocol
	}
	if out.Exchange == "" {
		out.Exchange = q.Protocol
	}

	g.AddEdge(NewDirectedEdge(from, to, WeightOf(price), in, out, q.ID))
}

func mustIndex(idx *VertexIndex, key string) int {
	i, ok := idx.Index(key)
	if !ok {
		panic(fmt.Sprintf("asset %q referenced by an edge was never indexed", key))
	}
	return i
}
