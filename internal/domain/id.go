package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// QuoteID = "<chain_id>:<pool_id>"
func MakeQuoteID(chainID uint32, poolID string) string {
	return fmt.Sprintf("%d:%s", chainID, strings.ToLower(poolID))
}

// Fresh identity for per-snapshot ingestion, every refresh produces new keys
func NewSnapshotQuoteID() string {
	return uuid.NewString()
}

type ParsedQuoteID struct {
	ChainID uint32
	PoolID  string
}

func ParseQuoteID(id string) (ParsedQuoteID, error) {
	var out ParsedQuoteID
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return out, fmt.Errorf("invalid quote_id format: %s", id)
	}

	chain, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return out, fmt.Errorf("invalid chain_id, err=%v", err)
	}

	out.ChainID = uint32(chain)
	out.PoolID = parts[1]

	return out, nil
}
