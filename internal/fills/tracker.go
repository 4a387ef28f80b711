// Package fills tracks how much of each of our own orders has matched.
//
// The tracker is fed by the own-orders push channel and reconciled against
// order-book snapshots. The running total it exposes is the sole source of
// truth for how much of a position has executed; no balance query is ever
// consulted.
package fills

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Tracker records the last known matched size per (market, order). Owned by
// the monitor goroutine; no internal locking.
type Tracker struct {
	fills map[string]map[string]decimal.Decimal
}

func NewTracker() *Tracker {
	return &Tracker{fills: make(map[string]map[string]decimal.Decimal)}
}

// RecordFill overwrites the stored matched size for an order. Last write
// wins: feed updates report the cumulative matched amount, never a delta.
func (t *Tracker) RecordFill(marketHash, orderHash string, matched decimal.Decimal) {
	market, ok := t.fills[marketHash]
	if !ok {
		market = make(map[string]decimal.Decimal)
		t.fills[marketHash] = market
	}

	if prev, ok := market[orderHash]; ok && matched.LessThan(prev) {
		// A correct feed never reports less than a previously seen total.
		log.Warn().
			Str("market", marketHash).
			Str("order", orderHash).
			Str("prev", prev.String()).
			Str("new", matched.String()).
			Msg("fill update regressed below previous value")
	}

	market[orderHash] = matched
}

// ApplyOrderUpdate applies one own-order status change. An order going
// inactive with a nonzero matched size is finalized at that size; inactive
// with zero matched is a plain cancellation and leaves no record.
func (t *Tracker) ApplyOrderUpdate(marketHash, orderHash string, active bool, matched decimal.Decimal) {
	if !active && matched.IsZero() {
		return
	}
	t.RecordFill(marketHash, orderHash, matched)
}

// AggregateFill sums the current matched sizes of every order recorded for
// the market, finalized orders included.
func (t *Tracker) AggregateFill(marketHash string) decimal.Decimal {
	total := decimal.Zero
	for _, matched := range t.fills[marketHash] {
		total = total.Add(matched)
	}
	return total
}

// Drop removes all fill records for a market.
func (t *Tracker) Drop(marketHash string) {
	delete(t.fills, marketHash)
}
