package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrInvalidQuote = errors.New("invalid quote")
)

// Vertex identity scheme for the graph
type KeyScheme int

const (
	KeyByAddress KeyScheme = iota
	KeyBySymbol
)

func ParseKeyScheme(s string) (KeyScheme, error) {
	switch strings.ToLower(s) {
	case "", "address":
		return KeyByAddress, nil
	case "symbol":
		return KeyBySymbol, nil
	default:
		return KeyByAddress, fmt.Errorf("unknown key scheme: %s", s)
	}
}

// Token as quoted by one venue, copied by value into edges
type Asset struct {
	Address      string  `json:"address"` // 0x-prefixed, chain unique
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Protocol     string  `json:"protocol"`
	PoolID       string  `json:"pool_id"`
	Decimals     int32   `json:"decimals"`
	DerivedValue float64 `json:"derived_value,omitempty"` // rate to ETH/BNB/USD, 0 if unknown
}

// Key returns the protocol independent vertex identity
func (a Asset) Key(scheme KeyScheme) string {
	if scheme == KeyBySymbol {
		return strings.ToUpper(strings.TrimSpace(a.Symbol))
	}
	return strings.ToLower(strings.TrimSpace(a.Address))
}

// Latest observed state of a pool
type Quote struct {
	ID           string    `json:"id"`
	PoolID       string    `json:"pool_id"`
	Protocol     string    `json:"protocol"` // uniswap-v2|balancer|curve...
	ChainID      uint32    `json:"chain_id"`
	Token0       Asset     `json:"token0"`
	Token1       Asset     `json:"token1"`
	Reserve0     float64   `json:"reserve0,omitempty"`
	Reserve1     float64   `json:"reserve1,omitempty"`
	Weight0      float64   `json:"weight0,omitempty"` // weighted pools only
	Weight1      float64   `json:"weight1,omitempty"`
	VirtualPrice float64   `json:"virtual_price,omitempty"` // stable-swap pools only
	SwapFee      float64   `json:"swap_fee"`
	Token0Price  float64   `json:"token0_price"` // token0 in terms of token1
	Token1Price  float64   `json:"token1_price"` // token1 in terms of token0
	BlockNumber  uint64    `json:"block_number"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the fields the graph relies on
func (q *Quote) Validate() error {
	switch {
	case q.ID == "":
		return fmt.Errorf("%w: id is empty", ErrInvalidQuote)
	case q.PoolID == "":
		return fmt.Errorf("%w: pool_id is empty (id=%s)", ErrInvalidQuote, q.ID)
	case q.Protocol == "":
		return fmt.Errorf("%w: protocol is empty (id=%s)", ErrInvalidQuote, q.ID)
	case q.Token0.Address == "" || q.Token1.Address == "":
		return fmt.Errorf("%w: token address is empty (id=%s)", ErrInvalidQuote, q.ID)
	case strings.EqualFold(q.Token0.Address, q.Token1.Address):
		return fmt.Errorf("%w: token0 equals token1 (id=%s)", ErrInvalidQuote, q.ID)
	case !positiveFinite(q.Token0Price):
		return fmt.Errorf("%w: token0_price=%v (id=%s)", ErrInvalidQuote, q.Token0Price, q.ID)
	case !positiveFinite(q.Token1Price):
		return fmt.Errorf("%w: token1_price=%v (id=%s)", ErrInvalidQuote, q.Token1Price, q.ID)
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Resolved negative cycle ready for simulation
type Arbitrage struct {
	Hash         string    `json:"hash"`
	Addresses    []string  `json:"addresses"`
	Exchanges    []string  `json:"exchanges"`
	Pools        []string  `json:"pools"`
	Symbols      []string  `json:"symbols"`
	Output       string    `json:"output"` // human readable trace
	FinalStake   float64   `json:"final_stake"`
	Symbol       string    `json:"symbol"` // entry asset
	Decimals     int32     `json:"decimals"`
	DerivedValue float64   `json:"derived_value,omitempty"`
	FoundAt      time.Time `json:"found_at"`
}

// Hops returns the number of trades in the path
func (a *Arbitrage) Hops() int {
	return len(a.Pools)
}

// Payload for the simulation/execution collaborator
type SimulationRequest struct {
	Hash         string   `json:"hash"`
	Exchanges    []string `json:"exchanges"`
	Addresses    []string `json:"addresses"`
	Pools        []string `json:"pools"`
	Output       string   `json:"output"`
	Volume       float64  `json:"volume"`
	VolumeUnits  string   `json:"volume_units,omitempty"` // volume scaled by decimals
	Decimals     int32    `json:"decimals,omitempty"`
	DerivedValue float64  `json:"derived_value,omitempty"`
}

type SimulationResponse struct {
	Error         bool    `json:"error"`
	Message       string  `json:"message,omitempty"`
	Profit        float64 `json:"profit"`
	OptimalVolume float64 `json:"optimal_volume,omitempty"`
}

type ExecutionResponse struct {
	Error           bool    `json:"error"`
	Message         string  `json:"message,omitempty"`
	Executed        bool    `json:"executed"`
	TransactionHash string  `json:"transactionHash,omitempty"`
	Profit          float64 `json:"profit"`
	Fake            bool    `json:"fake"`
	Volume          float64 `json:"volume,omitempty"`
}

// Append-only execution log row
type ExecutionRecord struct {
	ExecutedAt      time.Time `json:"executed_at"`
	ArbitrageHash   string    `json:"arbitrage_hash"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	Fake            bool      `json:"fake"`
	Profit          float64   `json:"profit"`
	Volume          float64   `json:"volume"`
	Currency        string    `json:"currency"`
	Hops            int       `json:"hops"`
	Output          string    `json:"output"`
}
