// internal/types/slippage.go
package types

import "math"

// BpsDenominator is the basis-point scale: 10_000 bps = 100%.
const BpsDenominator = 10_000

// MinAmountOutBps applies a slippage tolerance in basis points to an expected
// output amount. The result is the floor so the constraint never rounds in the
// pool's favor. A tolerance at or above 100% degenerates to 1, the smallest
// value that still passes program validation.
func MinAmountOutBps(expectedOut uint64, slippageBps uint16) uint64 {
	if uint32(slippageBps) >= BpsDenominator {
		return 1
	}
	keep := float64(BpsDenominator-uint32(slippageBps)) / float64(BpsDenominator)
	out := uint64(math.Floor(float64(expectedOut) * keep))
	if out == 0 {
		return 1
	}
	return out
}

// MaxSolCostBps is the buy-side counterpart: the most SOL we accept paying for
// a quoted input amount, padded by the slippage tolerance.
func MaxSolCostBps(quotedIn uint64, slippageBps uint16) uint64 {
	pad := float64(BpsDenominator+uint32(slippageBps)) / float64(BpsDenominator)
	return uint64(math.Ceil(float64(quotedIn) * pad))
}
