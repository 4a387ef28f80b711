// position.go - the in-memory registry entry for one monitored market.
package maker

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/icebot/internal/book"
	"github.com/web3guy0/icebot/internal/config"
)

// Position is the iceberg configuration for one market. At most one exists
// per market at a time.
type Position struct {
	MarketHash string
	Outcome    book.Outcome
	// MaxFill is the target total stake for the position.
	MaxFill decimal.Decimal
	// Increment caps how much of the position rests at once.
	Increment decimal.Decimal
	// Edge is the percentage price improvement demanded over the best
	// opposing price.
	Edge decimal.Decimal
	// MaxVig is the ceiling on acceptable market overround.
	MaxVig decimal.Decimal
	// MinOrderSize is the dust threshold for book entries we consider.
	MinOrderSize decimal.Decimal
	// StartedAt is unix milliseconds.
	StartedAt int64
}

// newPosition builds a Position from a start message, filling unset fields
// from configured defaults.
func newPosition(marketHash string, pc *PositionConfig, cfg *config.Config) (*Position, bool) {
	if pc == nil || pc.MaxFill == nil || pc.Increment == nil {
		return nil, false
	}

	p := &Position{
		MarketHash:   marketHash,
		Outcome:      book.OutcomeOne,
		MaxFill:      *pc.MaxFill,
		Increment:    *pc.Increment,
		Edge:         cfg.DefaultEdge,
		MaxVig:       cfg.DefaultMaxVig,
		MinOrderSize: cfg.DefaultMinOrderSize,
		StartedAt:    normalizeStartTime(pc.StartTime),
	}

	if pc.Outcome != nil && *pc.Outcome == 2 {
		p.Outcome = book.OutcomeTwo
	}
	if pc.Edge != nil {
		p.Edge = *pc.Edge
	}
	if pc.MaxVig != nil {
		p.MaxVig = *pc.MaxVig
	}
	if pc.MinOrderSize != nil {
		p.MinOrderSize = *pc.MinOrderSize
	}

	if !p.MaxFill.IsPositive() || !p.Increment.IsPositive() {
		return nil, false
	}
	return p, true
}

// apply merges non-nil fields from an update message into the position.
func (p *Position) apply(pc *PositionConfig) {
	if pc == nil {
		return
	}
	if pc.Outcome != nil {
		if *pc.Outcome == 2 {
			p.Outcome = book.OutcomeTwo
		} else {
			p.Outcome = book.OutcomeOne
		}
	}
	if pc.MaxFill != nil {
		p.MaxFill = *pc.MaxFill
	}
	if pc.Increment != nil {
		p.Increment = *pc.Increment
	}
	if pc.Edge != nil {
		p.Edge = *pc.Edge
	}
	if pc.MaxVig != nil {
		p.MaxVig = *pc.MaxVig
	}
	if pc.MinOrderSize != nil {
		p.MinOrderSize = *pc.MinOrderSize
	}
	if pc.StartTime != nil {
		p.StartedAt = normalizeStartTime(pc.StartTime)
	}
}
