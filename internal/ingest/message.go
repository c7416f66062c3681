package ingest

import (
	"bytes"
	"dexarb/internal/domain"
	"dexarb/internal/pricing"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Quote identity modes
const (
	IDModeStable   = "stable"   // chain:pool, a refresh overwrites the previous state
	IDModeSnapshot = "snapshot" // uuid per quote, every refresh adds new entries
)

var ErrMalformedPool = errors.New("malformed pool message")

type TokenMessage struct {
	Address      string  `json:"address"`
	Symbol       string  `json:"symbol"`
	Decimals     int32   `json:"decimals"`
	Balance      string  `json:"balance,omitempty"` // integer base units
	Weight       float64 `json:"weight,omitempty"`
	DerivedValue float64 `json:"derived_value,omitempty"`
}

// PoolMessage is the wire shape shared by the REST listing, the feed and Kafka
type PoolMessage struct {
	ID           string         `json:"id"`
	Exchange     string         `json:"exchange"`
	Protocol     string         `json:"protocol"`
	ChainID      uint32         `json:"chain_id,omitempty"`
	BlockNumber  uint64         `json:"block_number,omitempty"`
	Timestamp    int64          `json:"timestamp,omitempty"` // unix seconds
	SwapFee      float64        `json:"swap_fee"`
	VirtualPrice float64        `json:"virtual_price,omitempty"`
	Token0Price  float64        `json:"token0_price,omitempty"` // two token pools only
	Token1Price  float64        `json:"token1_price,omitempty"`
	Tokens       []TokenMessage `json:"tokens"`
}

// DecodePools accepts a single object, an array or a {"pools": [...]} envelope
func DecodePools(data []byte) ([]PoolMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPool)
	}

	switch data[0] {
	case '[':
		var pools []PoolMessage
		if err := json.Unmarshal(data, &pools); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPool, err)
		}
		return pools, nil
	case '{':
		var env struct {
			Pools []PoolMessage `json:"pools"`
		}
		if err := json.Unmarshal(data, &env); err == nil && env.Pools != nil {
			return env.Pools, nil
		}
		var one PoolMessage
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPool, err)
		}
		return []PoolMessage{one}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected leading %q", ErrMalformedPool, data[0])
	}
}

// Quotes expands the pool into one quote per token pair.
// chainID is used when the message does not carry its own.
func (m *PoolMessage) Quotes(idMode string, chainID uint32, now time.Time) ([]domain.Quote, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: id is empty", ErrMalformedPool)
	}
	if len(m.Tokens) < 2 {
		return nil, fmt.Errorf("%w: pool %s has %d tokens", ErrMalformedPool, m.ID, len(m.Tokens))
	}

	chain := m.ChainID
	if chain == 0 {
		chain = chainID
	}
	exchange := m.Exchange
	if exchange == "" {
		exchange = m.Protocol
	}
	updated := now.UTC()
	if m.Timestamp > 0 {
		updated = time.Unix(m.Timestamp, 0).UTC()
	}

	balances := make([]float64, len(m.Tokens))
	for i, t := range m.Tokens {
		b, err := pricing.FromBaseUnits(t.Balance, t.Decimals)
		if err != nil {
			return nil, fmt.Errorf("%w: pool %s token %s: %v", ErrMalformedPool, m.ID, t.Address, err)
		}
		balances[i] = b
	}

	pairwise := len(m.Tokens) > 2
	out := make([]domain.Quote, 0, len(m.Tokens)*(len(m.Tokens)-1)/2)

	for i := 0; i < len(m.Tokens); i++ {
		for j := i + 1; j < len(m.Tokens); j++ {
			poolKey := m.ID
			if pairwise {
				poolKey = fmt.Sprintf("%s:%d-%d", m.ID, i, j)
			}

			q := domain.Quote{
				PoolID:       strings.ToLower(m.ID),
				Protocol:     m.Protocol,
				ChainID:      chain,
				Token0:       m.asset(i, exchange),
				Token1:       m.asset(j, exchange),
				Reserve0:     balances[i],
				Reserve1:     balances[j],
				Weight0:      m.Tokens[i].Weight,
				Weight1:      m.Tokens[j].Weight,
				VirtualPrice: m.VirtualPrice,
				SwapFee:      m.SwapFee,
				BlockNumber:  m.BlockNumber,
				UpdatedAt:    updated,
			}
			if !pairwise {
				q.Token0Price = m.Token0Price
				q.Token1Price = m.Token1Price
			}

			if idMode == IDModeSnapshot {
				q.ID = domain.NewSnapshotQuoteID()
			} else {
				q.ID = domain.MakeQuoteID(chain, poolKey)
			}

			out = append(out, q)
		}
	}

	return out, nil
}

func (m *PoolMessage) asset(i int, exchange string) domain.Asset {
	t := m.Tokens[i]
	return domain.Asset{
		Address:      strings.ToLower(t.Address),
		Symbol:       t.Symbol,
		Exchange:     exchange,
		Protocol:     m.Protocol,
		PoolID:       strings.ToLower(m.ID),
		Decimals:     t.Decimals,
		DerivedValue: t.DerivedValue,
	}
}
