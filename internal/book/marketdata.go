// marketdata.go - pricing derived on demand from the order-book cache.
// Nothing here is memoized: every call scans the current book so readers
// always see the latest feed state.
package book

import (
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// BestOpposingPrice returns the highest maker implied probability among
// active, externally-owned entries betting the opposite outcome from side,
// considering only entries of at least minOrderSize. Returns zero when no
// qualifying entry exists. The best taker odds available on side are
// 1 - BestOpposingPrice.
func (s *Store) BestOpposingPrice(marketHash string, side Outcome, minOrderSize decimal.Decimal) decimal.Decimal {
	return s.bestMakerPrice(marketHash, side.Opposite(), minOrderSize)
}

// Vig returns the market overround: the sum of best taker implied
// probabilities across both outcomes minus one. Returns zero when either
// side has no qualifying entry; callers must read that as "insufficient
// data", never as a fairly priced market.
func (s *Store) Vig(marketHash string, minOrderSize decimal.Decimal) decimal.Decimal {
	bestOne := s.bestMakerPrice(marketHash, OutcomeOne, minOrderSize)
	bestTwo := s.bestMakerPrice(marketHash, OutcomeTwo, minOrderSize)
	if bestOne.IsZero() || bestTwo.IsZero() {
		return decimal.Zero
	}

	takerOne := one.Sub(bestTwo)
	takerTwo := one.Sub(bestOne)
	return takerOne.Add(takerTwo).Sub(one)
}

// bestMakerPrice scans active external entries whose maker is betting the
// given outcome and returns the maximum implied probability found.
func (s *Store) bestMakerPrice(marketHash string, makerSide Outcome, minOrderSize decimal.Decimal) decimal.Decimal {
	best := decimal.Zero
	for _, e := range s.books[marketHash] {
		if !e.Active || e.IsMine {
			continue
		}
		if e.Size.LessThan(minOrderSize) {
			continue
		}
		if e.OutcomeOne != (makerSide == OutcomeOne) {
			continue
		}
		if e.Price.GreaterThan(best) {
			best = e.Price
		}
	}
	return best
}
