package resolver

import (
	"dexarb/internal/domain"
	"dexarb/internal/graph"
	"dexarb/internal/negcycle"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"gitlab.com/nevasik7/alerting/logger"
)

/*
	Raw cycles -> ranked arbitrage candidates.
	The same physical cycle found from different sources starts at different hops,
	so every cycle is rotated to a canonical first hop before its trace is hashed.
*/

type Stats struct {
	Raw          int
	Duplicates   int
	NoBase       int // no hop starts at an allowed base currency
	Unprofitable int
	Kept         int
}

type Resolver struct {
	log  logger.Logger
	base map[string]struct{} // lower-cased addresses, empty -> every cycle is kept
	now  func() time.Time
	eps  float64 // minimal ln(final stake), same bound the engine reports cycles under
}

func New(log logger.Logger, baseCurrencies []string) *Resolver {
	base := make(map[string]struct{}, len(baseCurrencies))
	for _, b := range baseCurrencies {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			base[b] = struct{}{}
		}
	}
	return &Resolver{log: log, base: base, now: time.Now, eps: negcycle.DefaultThreshold}
}

// WithThreshold sets the log space bound a candidate must clear, <= 0 keeps the engine default
func (r *Resolver) WithThreshold(eps float64) *Resolver {
	if eps > 0 {
		r.eps = eps
	}
	return r
}

// Resolve deduplicates within this call only, every iteration starts from an empty set
func (r *Resolver) Resolve(cycles [][]graph.DirectedEdge) ([]domain.Arbitrage, Stats) {
	stats := Stats{Raw: len(cycles)}
	seen := make(map[string]struct{}, len(cycles))
	out := make([]domain.Arbitrage, 0, len(cycles))
	foundAt := r.now().UTC()

	for _, cycle := range cycles {
		if len(cycle) == 0 {
			continue
		}

		start, ok := r.canonicalStart(cycle)
		if !ok {
			stats.NoBase++
			continue
		}

		arb := build(rotate(cycle, start))
		if math.Log(arb.FinalStake) <= r.eps {
			// float drift on a break-even loop
			stats.Unprofitable++
			r.log.Debugf("Drop cycle with final_stake=%.12f", arb.FinalStake)
			continue
		}
		if _, dup := seen[arb.Hash]; dup {
			stats.Duplicates++
			continue
		}
		seen[arb.Hash] = struct{}{}

		arb.FoundAt = foundAt
		out = append(out, arb)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalStake != out[j].FinalStake {
			return out[i].FinalStake > out[j].FinalStake
		}
		return out[i].Hash < out[j].Hash
	})

	stats.Kept = len(out)
	return out, stats
}

// canonicalStart picks the first hop: an allowed base currency if an allowlist is set,
// otherwise the smallest (address, quote id)
func (r *Resolver) canonicalStart(cycle []graph.DirectedEdge) (int, bool) {
	if len(r.base) > 0 {
		best := -1
		for i, e := range cycle {
			if _, ok := r.base[strings.ToLower(e.AssetFrom.Address)]; !ok {
				continue
			}
			if best < 0 || less(e, cycle[best]) {
				best = i
			}
		}
		return best, best >= 0
	}

	best := 0
	for i := 1; i < len(cycle); i++ {
		if less(cycle[i], cycle[best]) {
			best = i
		}
	}
	return best, true
}

func less(a, b graph.DirectedEdge) bool {
	ka, kb := strings.ToLower(a.AssetFrom.Address), strings.ToLower(b.AssetFrom.Address)
	if ka != kb {
		return ka < kb
	}
	return a.QuoteID < b.QuoteID
}

func rotate(cycle []graph.DirectedEdge, start int) []graph.DirectedEdge {
	out := make([]graph.DirectedEdge, 0, len(cycle))
	out = append(out, cycle[start:]...)
	return append(out, cycle[:start]...)
}

// Compound multiplies the realized rates of path starting from 1.0
func Compound(path []graph.DirectedEdge) float64 {
	stake := 1.0
	for _, e := range path {
		stake *= math.Exp(-e.Weight)
	}
	return stake
}

func build(path []graph.DirectedEdge) domain.Arbitrage {
	n := len(path)
	arb := domain.Arbitrage{
		Addresses: make([]string, 0, n+1),
		Symbols:   make([]string, 0, n+1),
		Exchanges: make([]string, 0, n),
		Pools:     make([]string, 0, n),
	}

	var sb strings.Builder
	sb.Grow(n * 160)

	stake := 1.0
	for i, e := range path {
		next := stake * math.Exp(-e.Weight)
		if i > 0 {
			sb.WriteByte('\n')
		}
		writeLeg(&sb, stake, e.AssetFrom)
		sb.WriteString("= ")
		writeLeg(&sb, next, e.AssetTo)
		stake = next

		arb.Addresses = append(arb.Addresses, e.AssetFrom.Address)
		arb.Symbols = append(arb.Symbols, e.AssetFrom.Symbol)
		arb.Exchanges = append(arb.Exchanges, e.AssetFrom.Exchange)
		arb.Pools = append(arb.Pools, e.AssetFrom.PoolID)
	}
	last := path[n-1].AssetTo
	arb.Addresses = append(arb.Addresses, last.Address)
	arb.Symbols = append(arb.Symbols, last.Symbol)

	entry := path[0].AssetFrom
	arb.Output = sb.String()
	arb.FinalStake = stake
	arb.Symbol = entry.Symbol
	arb.Decimals = entry.Decimals
	arb.DerivedValue = entry.DerivedValue
	arb.Hash = strconv.FormatUint(xxhash.Sum64String(arb.Output), 16)

	return arb
}

// "%10.5f exchange-symbol-address " with fixed precision so equal paths hash equal
func writeLeg(sb *strings.Builder, stake float64, a domain.Asset) {
	fmt.Fprintf(sb, "%10.5f %s-%s-%s ", stake, a.Exchange, a.Symbol, a.Address)
}
