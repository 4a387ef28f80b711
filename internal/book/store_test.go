package book

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownMaker      = "0xAAAA000000000000000000000000000000000001"
	externalMaker = "0xBBBB000000000000000000000000000000000002"
	market        = "0xmarket1"
)

func entry(hash, maker string, outcomeOne bool, size, price float64, active bool) Entry {
	return Entry{
		OrderHash:  hash,
		Maker:      maker,
		OutcomeOne: outcomeOne,
		Size:       decimal.NewFromFloat(size),
		Price:      decimal.NewFromFloat(price),
		Active:     active,
	}
}

func TestStore_LastWriteWins(t *testing.T) {
	s := NewStore(ownMaker, time.Minute)

	s.ApplyUpdate(market, []Entry{entry("0x1", externalMaker, true, 100, 0.50, true)})
	s.ApplyUpdate(market, []Entry{entry("0x1", externalMaker, true, 40, 0.52, true)})

	snap := s.Snapshot(market)
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Price.Equal(decimal.NewFromFloat(0.52)))
	assert.True(t, snap[0].Size.Equal(decimal.NewFromFloat(40)))
}

func TestStore_DustFilter(t *testing.T) {
	s := NewStore(ownMaker, time.Minute)
	s.SetDustThreshold(market, decimal.NewFromInt(10))

	s.ApplyUpdate(market, []Entry{
		entry("0xdust", externalMaker, true, 5, 0.50, true),
		entry("0xkeep", externalMaker, true, 10, 0.50, true),
	})

	snap := s.Snapshot(market)
	require.Len(t, snap, 1)
	assert.Equal(t, "0xkeep", snap[0].OrderHash)
}

func TestStore_OwnOrdersBypassDustAndAreFlagged(t *testing.T) {
	s := NewStore(ownMaker, time.Minute)
	s.SetDustThreshold(market, decimal.NewFromInt(10))

	// Own orders are kept regardless of size, case-insensitively.
	s.ApplyUpdate(market, []Entry{entry("0xmine", "0xaaaa000000000000000000000000000000000001", true, 1, 0.50, true)})

	snap := s.Snapshot(market)
	require.Len(t, snap, 1)
	assert.True(t, snap[0].IsMine)
}

func TestStore_EvictsStaleInactiveEntries(t *testing.T) {
	s := NewStore(ownMaker, time.Millisecond)

	s.ApplyUpdate(market, []Entry{entry("0xgone", externalMaker, true, 100, 0.50, false)})
	time.Sleep(5 * time.Millisecond)

	// Next ingest compacts the book.
	s.ApplyUpdate(market, []Entry{entry("0xlive", externalMaker, true, 100, 0.50, true)})

	snap := s.Snapshot(market)
	require.Len(t, snap, 1)
	assert.Equal(t, "0xlive", snap[0].OrderHash)
}

func TestStore_Drop(t *testing.T) {
	s := NewStore(ownMaker, time.Minute)
	s.ApplyUpdate(market, []Entry{entry("0x1", externalMaker, true, 100, 0.50, true)})

	s.Drop(market)
	assert.Empty(t, s.Snapshot(market))
}
