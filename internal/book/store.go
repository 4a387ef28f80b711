// Package book maintains a local mirror of the visible order book for every
// monitored market and derives pricing data from it.
//
// store.go - keyed order-book cache fed by REST snapshots and the realtime
// push feed. Latest record per orderHash wins; inactive entries are evicted
// once they age past the retention window so the cache stays bounded.
package book

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Outcome identifies which side of a two-outcome market a bet is on.
type Outcome int

const (
	OutcomeOne Outcome = 1
	OutcomeTwo Outcome = 2
)

// Opposite returns the other side of the market.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeOne {
		return OutcomeTwo
	}
	return OutcomeOne
}

// Entry is one externally-visible resting order, normalized to human units.
type Entry struct {
	OrderHash string
	Maker     string
	// OutcomeOne reports which outcome the maker is betting.
	OutcomeOne bool
	// Size is the unfilled stake in base-token units (human readable).
	Size decimal.Decimal
	// Price is the maker's implied probability in [0,1].
	Price     decimal.Decimal
	Active    bool
	IsMine    bool
	UpdatedAt time.Time
}

// Store is the per-market order-book cache. It is owned by the monitor
// goroutine; no internal locking.
type Store struct {
	maker     string
	retention time.Duration
	books     map[string]map[string]Entry
	dust      map[string]decimal.Decimal
}

// NewStore creates a store that flags orders made by maker as its own and
// evicts inactive entries older than retention.
func NewStore(maker string, retention time.Duration) *Store {
	return &Store{
		maker:     strings.ToLower(maker),
		retention: retention,
		books:     make(map[string]map[string]Entry),
		dust:      make(map[string]decimal.Decimal),
	}
}

// SetDustThreshold sets the minimum size below which externally-owned
// entries are discarded at ingest for the given market.
func (s *Store) SetDustThreshold(marketHash string, minOrderSize decimal.Decimal) {
	s.dust[marketHash] = minOrderSize
}

// ApplyUpdate ingests a snapshot or push batch for a market. Records merge
// into the existing book: the latest record per orderHash wins.
func (s *Store) ApplyUpdate(marketHash string, entries []Entry) {
	book, ok := s.books[marketHash]
	if !ok {
		book = make(map[string]Entry)
		s.books[marketHash] = book
	}

	dust := s.dust[marketHash]
	now := time.Now()

	for _, e := range entries {
		e.IsMine = strings.EqualFold(e.Maker, s.maker)
		if !e.IsMine && e.Size.LessThan(dust) {
			continue
		}
		e.UpdatedAt = now
		book[e.OrderHash] = e
	}

	s.compact(marketHash, now)
}

// compact evicts inactive entries past the retention window.
func (s *Store) compact(marketHash string, now time.Time) {
	book := s.books[marketHash]
	for hash, e := range book {
		if !e.Active && now.Sub(e.UpdatedAt) > s.retention {
			delete(book, hash)
		}
	}
}

// Snapshot returns the current entries for a market.
func (s *Store) Snapshot(marketHash string) []Entry {
	book := s.books[marketHash]
	out := make([]Entry, 0, len(book))
	for _, e := range book {
		out = append(out, e)
	}
	return out
}

// Drop removes all cached state for a market.
func (s *Store) Drop(marketHash string) {
	delete(s.books, marketHash)
	delete(s.dust, marketHash)
	log.Debug().Str("market", marketHash).Msg("order book dropped")
}
