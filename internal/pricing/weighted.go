package pricing

import "math"

// Weighted pool math (Balancer). Balances and weights share units per token, swapFee is a fraction.

// SpotPrice is the price of tokenOut in units of tokenIn, fee included, no slippage
//
//	sP = (bI / wI) / (bO / wO) * 1 / (1 - sF)
func SpotPrice(balanceIn, weightIn, balanceOut, weightOut, swapFee float64) float64 {
	return ((balanceIn / weightIn) / (balanceOut / weightOut)) * (1 / (1 - swapFee))
}

// OutGivenIn is the amount of tokenOut received for amountIn of tokenIn
//
//	aO = bO * (1 - (bI / (bI + aI * (1 - sF))) ^ (wI / wO))
func OutGivenIn(balanceIn, weightIn, balanceOut, weightOut, amountIn, swapFee float64) float64 {
	ratio := balanceIn / (balanceIn + amountIn*(1-swapFee))
	return balanceOut * (1 - math.Pow(ratio, weightIn/weightOut))
}

// InGivenPrice is the amount of tokenIn that moves the spot price from current to desired
//
//	aI = | bI * ((dSP / cSP) ^ (wO / (wI + wO)) - 1) |
func InGivenPrice(currentPrice, desiredPrice, weightIn, weightOut, balanceIn float64) float64 {
	res := balanceIn * (math.Pow(desiredPrice/currentPrice, weightOut/(weightIn+weightOut)) - 1)
	return math.Abs(res)
}
