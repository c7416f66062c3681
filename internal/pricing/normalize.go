package pricing

import (
	"dexarb/internal/domain"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNoPriceSource = errors.New("quote has neither prices nor reserves")
)

// Normalize fills Token0Price/Token1Price from pool state when the feed did not send them.
// Feed prices win when both are present.
func Normalize(q *domain.Quote) error {
	if q.Token0Price > 0 && q.Token1Price > 0 {
		return nil
	}

	fee := q.SwapFee
	if fee < 0 || fee >= 1 {
		return fmt.Errorf("swap_fee %v out of range (id=%s)", fee, q.ID)
	}

	switch {
	case q.Reserve0 > 0 && q.Reserve1 > 0 && q.Weight0 > 0 && q.Weight1 > 0:
		// rate in->out is 1/spot(out in units of in)
		q.Token0Price = 1 / SpotPrice(q.Reserve0, q.Weight0, q.Reserve1, q.Weight1, fee)
		q.Token1Price = 1 / SpotPrice(q.Reserve1, q.Weight1, q.Reserve0, q.Weight0, fee)
	case q.Reserve0 > 0 && q.Reserve1 > 0:
		q.Token0Price, q.Token1Price = ConstantProductPrices(q.Reserve0, q.Reserve1, fee)
	case q.VirtualPrice > 0:
		q.Token0Price, q.Token1Price = StablePrices(q.VirtualPrice, fee)
	default:
		return fmt.Errorf("%w (id=%s)", ErrNoPriceSource, q.ID)
	}

	return nil
}

// ConstantProductPrices for x*y=k pools, fee taken on the input side
func ConstantProductPrices(reserve0, reserve1, swapFee float64) (float64, float64) {
	keep := 1 - swapFee
	return reserve1 / reserve0 * keep, reserve0 / reserve1 * keep
}

// StablePrices for stable-swap pools quoted by virtual price only
func StablePrices(virtualPrice, swapFee float64) (float64, float64) {
	keep := 1 - swapFee
	return virtualPrice * keep, 1 / virtualPrice * keep
}

// ToBaseUnits scales a human amount to integer token units, truncating dust
func ToBaseUnits(amount float64, decimals int32) string {
	return decimal.NewFromFloat(amount).Shift(decimals).Truncate(0).String()
}

// FromBaseUnits parses an integer token amount (uint256 as string) into a float
func FromBaseUnits(raw string, decimals int32) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %q", raw)
	}

	f, _ := d.Shift(-decimals).Float64()
	return f, nil
}
