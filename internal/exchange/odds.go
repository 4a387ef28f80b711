// odds.go - conversions between human-readable probabilities/sizes and the
// venue's scaled wire integers, plus the betting price ladder.
package exchange

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// The venue expresses implied probability as an integer scaled by 10^20.
const oddsDecimals = 20

// LadderStep is the venue's price-ladder granularity in probability units.
// Every posted price must sit on a multiple of this step.
var LadderStep = decimal.NewFromFloat(0.0025)

// SentinelExpiry marks an order as effectively non-expiring on-chain; the
// short apiExpiry is what actually bounds acceptance.
const SentinelExpiry int64 = 2209006800

// LadderFloor rounds a probability down to the nearest ladder step. Flooring
// keeps the posted maker price at least as conservative as the unrounded
// target, so the realized edge never undershoots the requested one.
func LadderFloor(p decimal.Decimal) decimal.Decimal {
	return p.Div(LadderStep).Floor().Mul(LadderStep)
}

// OddsToWire scales an implied probability to the venue's x10^20 integer.
func OddsToWire(p decimal.Decimal) *big.Int {
	return p.Shift(oddsDecimals).Floor().BigInt()
}

// OddsFromWire converts a scaled odds integer back to a probability.
func OddsFromWire(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -oddsDecimals)
}

// SizeToWire scales a human-unit stake to base-token units.
func SizeToWire(size decimal.Decimal, tokenDecimals int32) *big.Int {
	return size.Shift(tokenDecimals).Floor().BigInt()
}

// SizeFromWire converts base-token units back to human units.
func SizeFromWire(v *big.Int, tokenDecimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(v, -tokenDecimals)
}
