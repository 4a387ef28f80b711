// lifecycle.go - order construction, signing, submission, and cancellation.
//
// Posting fails closed: any invalid intermediate (no opposing price, target
// probability outside (0,1), market deregistered mid-computation) logs and
// returns an empty hash. The next scheduler tick is the retry.
package maker

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/icebot/internal/book"
	"github.com/web3guy0/icebot/internal/config"
	"github.com/web3guy0/icebot/internal/exchange"
	"github.com/web3guy0/icebot/internal/journal"
	"github.com/web3guy0/icebot/internal/signer"
)

// apiAcceptanceWindow is how long the venue may accept a posted order.
const apiAcceptanceWindow = 300 * time.Second

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ExchangeAPI is the slice of the REST client the maker consumes.
type ExchangeAPI interface {
	ActiveOrders(ctx context.Context, marketHash, maker string, retries int) ([]exchange.Order, error)
	Orders(ctx context.Context, marketHash string) ([]exchange.Order, error)
	PostOrder(ctx context.Context, order *exchange.SignedOrder) (string, error)
	CancelOrders(ctx context.Context, req *exchange.CancelRequest) (int, error)
	TradeVolume(ctx context.Context, marketHash, bettor string) (decimal.Decimal, error)
}

// Lifecycle posts and cancels signed orders for monitored markets.
type Lifecycle struct {
	cfg      *config.Config
	exchange ExchangeAPI
	signer   *signer.Signer
	book     *book.Store
	journal  *journal.Journal

	// registered reports whether a market is still monitored; consulted
	// before and after price computation since monitoring may stop between
	// the two.
	registered func(marketHash string) bool

	lastPost map[string]time.Time
}

func NewLifecycle(cfg *config.Config, ex ExchangeAPI, sg *signer.Signer, bk *book.Store, jr *journal.Journal, registered func(string) bool) *Lifecycle {
	return &Lifecycle{
		cfg:        cfg,
		exchange:   ex,
		signer:     sg,
		book:       bk,
		journal:    jr,
		registered: registered,
		lastPost:   make(map[string]time.Time),
	}
}

// DesiredOdds computes the laddered maker price for a market given the
// position's edge: bestTakerOdds x (1 - edge/100), floored to the ladder,
// scaled to wire units. Returns false when the market has no actionable
// price.
func (l *Lifecycle) DesiredOdds(marketHash string, side book.Outcome, edge, minOrderSize decimal.Decimal) (*big.Int, bool) {
	best := l.book.BestOpposingPrice(marketHash, side, minOrderSize)
	if !best.IsPositive() || best.GreaterThanOrEqual(one) {
		return nil, false
	}

	taker := one.Sub(best)
	target := taker.Mul(one.Sub(edge.Div(hundred)))
	if !target.IsPositive() || target.GreaterThanOrEqual(one) {
		return nil, false
	}

	return exchange.OddsToWire(exchange.LadderFloor(target)), true
}

// Post builds, signs, and submits one order. Returns the order hash, or ""
// on any failure; failures are logged and never retried here.
func (l *Lifecycle) Post(ctx context.Context, marketHash string, side book.Outcome, size, edge, minOrderSize decimal.Decimal) string {
	if !l.registered(marketHash) {
		log.Debug().Str("market", marketHash).Msg("post skipped: market not monitored")
		return ""
	}
	if since := time.Since(l.lastPost[marketHash]); since < l.cfg.PostCooldown {
		log.Debug().Str("market", marketHash).Dur("since", since).Msg("post skipped: cooldown")
		return ""
	}

	odds, ok := l.DesiredOdds(marketHash, side, edge, minOrderSize)
	if !ok {
		log.Info().Str("market", marketHash).Msg("post skipped: no actionable price")
		return ""
	}

	// Monitoring may have stopped while we computed the price.
	if !l.registered(marketHash) {
		log.Debug().Str("market", marketHash).Msg("post aborted: market deregistered mid-computation")
		return ""
	}

	now := time.Now()
	order := &signer.Order{
		MarketHash:               marketHash,
		BaseToken:                common.HexToAddress(l.cfg.BaseToken),
		TotalBetSize:             exchange.SizeToWire(size, l.cfg.BaseTokenDecimals),
		PercentageOdds:           odds,
		Expiry:                   big.NewInt(exchange.SentinelExpiry),
		APIExpiry:                big.NewInt(now.Add(apiAcceptanceWindow).Unix()),
		Salt:                     signer.NewSalt(),
		Maker:                    l.signer.Maker(),
		Executor:                 common.HexToAddress(l.cfg.ExecutorAddress),
		IsMakerBettingOutcomeOne: side == book.OutcomeOne,
	}

	orderHash, sig, err := l.signer.SignOrder(order)
	if err != nil {
		log.Error().Err(err).Str("market", marketHash).Msg("order signing failed")
		return ""
	}

	wire := &exchange.SignedOrder{
		MarketHash:               order.MarketHash,
		Maker:                    order.Maker.Hex(),
		BaseToken:                order.BaseToken.Hex(),
		TotalBetSize:             order.TotalBetSize.String(),
		PercentageOdds:           order.PercentageOdds.String(),
		APIExpiry:                order.APIExpiry.Int64(),
		Expiry:                   order.Expiry.Int64(),
		Executor:                 order.Executor.Hex(),
		IsMakerBettingOutcomeOne: order.IsMakerBettingOutcomeOne,
		Salt:                     order.Salt.String(),
		Signature:                sig,
	}

	if l.cfg.DryRun {
		log.Info().
			Str("market", marketHash).
			Str("size", size.String()).
			Str("odds", exchange.OddsFromWire(odds).String()).
			Msg("DRY RUN: would post order")
	} else {
		if _, err := l.exchange.PostOrder(ctx, wire); err != nil {
			log.Error().Err(err).Str("market", marketHash).Msg("order submission failed")
			return ""
		}
	}

	l.lastPost[marketHash] = now
	l.journal.SaveOrder(&journal.PostedOrder{
		OrderHash:      orderHash,
		MarketHash:     marketHash,
		Outcome:        int(side),
		Size:           size,
		Price:          exchange.OddsFromWire(odds),
		PercentageOdds: odds.String(),
		APIExpiry:      order.APIExpiry.Int64(),
		DryRun:         l.cfg.DryRun,
	})

	log.Info().
		Str("market", marketHash).
		Str("order", orderHash).
		Str("size", size.String()).
		Str("odds", exchange.OddsFromWire(odds).String()).
		Msg("order posted")
	return orderHash
}

// Cancel signs and submits one batch cancellation. Best effort: failures are
// logged and swallowed. No-ops on an empty batch without touching the
// network.
func (l *Lifecycle) Cancel(ctx context.Context, marketHash string, orderHashes []string, reason string) {
	if len(orderHashes) == 0 {
		return
	}

	if l.cfg.DryRun {
		log.Info().
			Str("market", marketHash).
			Int("orders", len(orderHashes)).
			Str("reason", reason).
			Msg("DRY RUN: would cancel orders")
		return
	}

	salt := signer.NewSalt()
	timestamp := time.Now().Unix()

	sig, err := l.signer.SignCancellation(orderHashes, salt, timestamp)
	if err != nil {
		log.Error().Err(err).Str("market", marketHash).Msg("cancellation signing failed")
		return
	}

	req := &exchange.CancelRequest{
		OrderHashes: orderHashes,
		Signature:   sig,
		Salt:        salt.String(),
		Maker:       l.signer.Maker().Hex(),
		Timestamp:   timestamp,
	}

	count, err := l.exchange.CancelOrders(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("market", marketHash).Int("orders", len(orderHashes)).Msg("cancellation failed")
		return
	}

	l.journal.SaveCancellation(&journal.Cancellation{
		MarketHash:  marketHash,
		OrderHashes: strings.Join(orderHashes, ","),
		Count:       count,
		Reason:      reason,
	})

	log.Info().
		Str("market", marketHash).
		Int("cancelled", count).
		Str("reason", reason).
		Msg("orders cancelled")
}
