package graph

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDOT renders g in Graphviz format, edges on any highlighted cycle are drawn red
func WriteDOT(w io.Writer, g *EdgeWeightedDigraph, idx *VertexIndex, highlight [][]DirectedEdge) error {
	hot := make(map[edgeKey]struct{})
	for _, cycle := range highlight {
		for _, e := range cycle {
			hot[edgeKey{from: idx.Key(e.From), to: idx.Key(e.To), quoteID: e.QuoteID}] = struct{}{}
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph arbitrage {")
	fmt.Fprintln(bw, "  rankdir=LR;")
	fmt.Fprintln(bw, "  node [shape=box, fontsize=10];")

	for v := 0; v < g.V(); v++ {
		a := idx.Asset(v)
		fmt.Fprintf(bw, "  %d [label=%q];\n", v, a.Symbol+"\n"+idx.Key(v))
	}

	for _, e := range g.Edges() {
		attrs := fmt.Sprintf("label=%q", fmt.Sprintf("%.5f %s", e.Rate(), e.AssetFrom.Exchange))
		if _, ok := hot[edgeKey{from: idx.Key(e.From), to: idx.Key(e.To), quoteID: e.QuoteID}]; ok {
			attrs += ", color=red, penwidth=2"
		}
		fmt.Fprintf(bw, "  %d -> %d [%s];\n", e.From, e.To, attrs)
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
