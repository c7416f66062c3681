package graph

import (
	"dexarb/internal/domain"
	"fmt"
	"math"
)

// DirectedEdge means "spend AssetFrom, receive AssetTo" at rate exp(-Weight)
type DirectedEdge struct {
	From      int
	To        int
	Weight    float64
	AssetFrom domain.Asset
	AssetTo   domain.Asset
	QuoteID   string
}

// NewDirectedEdge panics on a weight that cannot come from a positive price
func NewDirectedEdge(from, to int, weight float64, assetFrom, assetTo domain.Asset, quoteID string) DirectedEdge {
	if from < 0 || to < 0 {
		panic(fmt.Sprintf("vertex index must be non-negative: %d->%d", from, to))
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		panic(fmt.Sprintf("edge weight must be finite: %d->%d weight=%v", from, to, weight))
	}

	return DirectedEdge{
		From:      from,
		To:        to,
		Weight:    weight,
		AssetFrom: assetFrom,
		AssetTo:   assetTo,
		QuoteID:   quoteID,
	}
}

// Weight for an exchange rate, negative when rate > 1
func WeightOf(rate float64) float64 {
	return -math.Log(rate)
}

// Rate realized by crossing the edge
func (e DirectedEdge) Rate() float64 {
	return math.Exp(-e.Weight)
}

func (e DirectedEdge) String() string {
	return fmt.Sprintf("%d->%d %.5f", e.From, e.To, e.Weight)
}
