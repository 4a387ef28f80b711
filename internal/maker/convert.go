// convert.go - normalization of wire records (push feed and REST snapshots)
// into the order-book cache and the fill tracker.
package maker

import (
	"context"
	"math/big"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/icebot/internal/book"
	"github.com/web3guy0/icebot/internal/exchange"
	"github.com/web3guy0/icebot/internal/feed"
	"github.com/web3guy0/icebot/internal/journal"
)

// applyFeedUpdate ingests one push-feed message: every record lands in the
// order-book cache, and our own orders additionally reconcile the fill
// tracker.
func (m *Monitor) applyFeedUpdate(u feed.Update) {
	maker := m.signer.Maker().Hex()
	byMarket := make(map[string][]book.Entry)

	for _, rec := range u.Orders {
		byMarket[rec.MarketHash] = append(byMarket[rec.MarketHash], book.Entry{
			OrderHash:  rec.OrderHash,
			Maker:      rec.Maker,
			OutcomeOne: rec.IsMakerBettingOutcomeOne,
			Size:       exchange.SizeFromWire(rec.TotalBetSize, m.cfg.BaseTokenDecimals),
			Price:      exchange.OddsFromWire(rec.PercentageOdds),
			Active:     rec.Active,
		})

		if strings.EqualFold(rec.Maker, maker) {
			matched := exchange.SizeFromWire(rec.FillAmount, m.cfg.BaseTokenDecimals)
			m.fills.ApplyOrderUpdate(rec.MarketHash, rec.OrderHash, rec.Active, matched)
			if !matched.IsZero() {
				m.journal.SaveFill(&journal.Fill{
					MarketHash: rec.MarketHash,
					OrderHash:  rec.OrderHash,
					Matched:    matched,
					Final:      !rec.Active,
				})
			}
		}
	}

	for marketHash, entries := range byMarket {
		m.book.ApplyUpdate(marketHash, entries)
	}
}

// refreshBook pulls a full REST snapshot of a market's order book into the
// cache and reconciles any of our own orders it reveals.
func (m *Monitor) refreshBook(ctx context.Context, marketHash string) {
	orders, err := m.exchange.Orders(ctx, marketHash)
	if err != nil {
		log.Warn().Err(err).Str("market", marketHash).Msg("book snapshot failed, feed remains authoritative")
		return
	}

	maker := m.signer.Maker().Hex()
	entries := make([]book.Entry, 0, len(orders))

	for _, o := range orders {
		size, ok := new(big.Int).SetString(o.TotalBetSize, 10)
		if !ok {
			log.Warn().Str("order", o.OrderHash).Str("size", o.TotalBetSize).Msg("unparseable order size, dropped")
			continue
		}
		odds, ok := new(big.Int).SetString(o.PercentageOdds, 10)
		if !ok {
			log.Warn().Str("order", o.OrderHash).Str("odds", o.PercentageOdds).Msg("unparseable order odds, dropped")
			continue
		}

		active := o.Status == "" || o.Status == "ACTIVE"
		entries = append(entries, book.Entry{
			OrderHash:  o.OrderHash,
			Maker:      o.Maker,
			OutcomeOne: o.IsMakerBettingOutcomeOne,
			Size:       exchange.SizeFromWire(size, m.cfg.BaseTokenDecimals),
			Price:      exchange.OddsFromWire(odds),
			Active:     active,
		})

		if strings.EqualFold(o.Maker, maker) && o.FillAmount != "" {
			if matched, ok := new(big.Int).SetString(o.FillAmount, 10); ok {
				m.fills.ApplyOrderUpdate(marketHash, o.OrderHash, active, exchange.SizeFromWire(matched, m.cfg.BaseTokenDecimals))
			}
		}
	}

	m.book.ApplyUpdate(marketHash, entries)
	log.Debug().Str("market", marketHash).Int("orders", len(entries)).Msg("book snapshot applied")
}
