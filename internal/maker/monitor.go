// Package maker runs the market-monitoring and order-lifecycle engine: it
// keeps a slice of each target position resting at a competitive price and
// withdraws when vig or fill state makes resting unsafe.
//
// monitor.go - the single-owner event loop. One goroutine owns the position
// registry, the order-book cache, and the fill tracker; the scheduler tick,
// inbound control messages, and push-feed events are merged into one select
// and processed in arrival order, so none of those structures need locks.
package maker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/icebot/internal/book"
	"github.com/web3guy0/icebot/internal/config"
	"github.com/web3guy0/icebot/internal/exchange"
	"github.com/web3guy0/icebot/internal/feed"
	"github.com/web3guy0/icebot/internal/fills"
	"github.com/web3guy0/icebot/internal/journal"
	"github.com/web3guy0/icebot/internal/signer"
)

const (
	// fillTolerance treats a position as complete slightly below 100% to
	// absorb rounding and settlement noise.
	fillTolerance = 0.99
	// minRemainder is the smallest stake worth resting, in human units.
	minRemainder = 10
	// snapshotEveryTicks spaces out full REST book refreshes; the push feed
	// covers everything in between.
	snapshotEveryTicks = 17

	ctrlBuffer   = 16
	feedBuffer   = 256
	statusBuffer = 64
)

var (
	tolerance    = decimal.NewFromFloat(fillTolerance)
	minRemaining = decimal.NewFromInt(minRemainder)
)

// FeedSubscriber is the slice of the push-feed client the monitor consumes.
type FeedSubscriber interface {
	SubscribeMarket(marketHash string) error
	UnsubscribeMarket(marketHash string) error
	SubscribeOwnOrders(baseToken, maker string) error
}

// Monitor owns all per-market state and drives the order lifecycle.
type Monitor struct {
	cfg       *config.Config
	book      *book.Store
	fills     *fills.Tracker
	exchange  ExchangeAPI
	signer    *signer.Signer
	feed      FeedSubscriber
	journal   *journal.Journal
	lifecycle *Lifecycle

	positions map[string]*Position

	ctrlCh   chan ControlMessage
	feedCh   chan feed.Update
	statusCh chan StatusMessage

	tick int
}

// NewMonitor wires the engine together. journal may be nil.
func NewMonitor(cfg *config.Config, ex ExchangeAPI, sg *signer.Signer, fd FeedSubscriber, jr *journal.Journal) *Monitor {
	m := &Monitor{
		cfg:       cfg,
		book:      book.NewStore(sg.Maker().Hex(), cfg.BookRetention),
		fills:     fills.NewTracker(),
		exchange:  ex,
		signer:    sg,
		feed:      fd,
		journal:   jr,
		positions: make(map[string]*Position),
		ctrlCh:    make(chan ControlMessage, ctrlBuffer),
		feedCh:    make(chan feed.Update, feedBuffer),
		statusCh:  make(chan StatusMessage, statusBuffer),
	}
	m.lifecycle = NewLifecycle(cfg, ex, sg, m.book, jr, m.isRegistered)
	return m
}

// Control queues a control message for the monitor loop.
func (m *Monitor) Control(msg ControlMessage) {
	m.ctrlCh <- msg
}

// PushFeedUpdate hands a decoded feed message to the monitor loop. Safe to
// call from the feed's read goroutine.
func (m *Monitor) PushFeedUpdate(u feed.Update) {
	m.feedCh <- u
}

// Status returns the outbound status message stream.
func (m *Monitor) Status() <-chan StatusMessage {
	return m.statusCh
}

func (m *Monitor) isRegistered(marketHash string) bool {
	_, ok := m.positions[marketHash]
	return ok
}

// Run processes events until the context is cancelled or a stopAll message
// arrives. On exit every registered market's active orders are cancelled in
// a best-effort sweep.
func (m *Monitor) Run(ctx context.Context) {
	if m.feed != nil {
		if err := m.feed.SubscribeOwnOrders(m.cfg.BaseToken, m.signer.Maker().Hex()); err != nil {
			log.Warn().Err(err).Msg("own-orders subscription failed, relying on snapshots")
		}
	}

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	log.Info().Dur("tick", m.cfg.TickInterval).Msg("monitor loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("monitor loop stopping")
			m.shutdownSweep()
			return

		case msg := <-m.ctrlCh:
			if terminate := m.handleControl(ctx, msg); terminate {
				return
			}

		case u := <-m.feedCh:
			m.applyFeedUpdate(u)

		case <-ticker.C:
			m.runTick(ctx)
		}
	}
}

// handleControl applies one control message. Returns true when the monitor
// should terminate (stopAll).
func (m *Monitor) handleControl(ctx context.Context, msg ControlMessage) bool {
	switch msg.Action {
	case ActionStart:
		m.startMarket(ctx, msg.MarketHash, msg.Config)

	case ActionStop:
		m.stopMarket(ctx, msg.MarketHash, "stop")

	case ActionUpdate:
		pos, ok := m.positions[msg.MarketHash]
		if !ok {
			log.Warn().Str("market", msg.MarketHash).Msg("update for unmonitored market ignored")
			return false
		}
		pos.apply(msg.Config)
		m.book.SetDustThreshold(msg.MarketHash, pos.MinOrderSize)
		log.Info().Str("market", msg.MarketHash).Msg("position updated")

	case ActionStopAll:
		for _, marketHash := range m.marketKeys() {
			m.stopMarket(ctx, marketHash, "stopAll")
		}
		log.Info().Msg("all positions stopped, terminating")
		return true

	case ActionForceRefreshAll:
		log.Info().Msg("forced refresh of all markets")
		m.runTick(ctx)

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("unknown control action ignored")
	}
	return false
}

func (m *Monitor) startMarket(ctx context.Context, marketHash string, pc *PositionConfig) {
	if marketHash == "" {
		log.Warn().Msg("start message without marketHash ignored")
		return
	}
	if _, ok := m.positions[marketHash]; ok {
		log.Warn().Str("market", marketHash).Msg("market already monitored, applying config as update")
		m.positions[marketHash].apply(pc)
		return
	}

	pos, ok := newPosition(marketHash, pc, m.cfg)
	if !ok {
		log.Error().Str("market", marketHash).Msg("start message missing maxFill/increment, ignored")
		return
	}

	m.positions[marketHash] = pos
	m.book.SetDustThreshold(marketHash, pos.MinOrderSize)

	if m.feed != nil {
		if err := m.feed.SubscribeMarket(marketHash); err != nil {
			log.Warn().Err(err).Str("market", marketHash).Msg("market subscription failed, relying on snapshots")
		}
	}

	m.refreshBook(ctx, marketHash)
	m.reconcileTradeHistory(ctx, marketHash)

	log.Info().
		Str("market", marketHash).
		Int("outcome", int(pos.Outcome)).
		Str("maxFill", pos.MaxFill.String()).
		Str("increment", pos.Increment.String()).
		Str("edge", pos.Edge.String()).
		Str("maxVig", pos.MaxVig.String()).
		Msg("monitoring started")
}

// stopMarket cancels the operator's active orders on the market and drops
// all state for it.
func (m *Monitor) stopMarket(ctx context.Context, marketHash string, reason string) {
	if _, ok := m.positions[marketHash]; !ok {
		log.Warn().Str("market", marketHash).Msg("stop for unmonitored market ignored")
		return
	}

	// Deregister first so an in-flight post re-check rejects the market.
	delete(m.positions, marketHash)

	m.cancelActive(ctx, marketHash, reason)
	m.dropMarket(marketHash)

	log.Info().Str("market", marketHash).Str("reason", reason).Msg("monitoring stopped")
}

func (m *Monitor) dropMarket(marketHash string) {
	m.book.Drop(marketHash)
	m.fills.Drop(marketHash)
	if m.feed != nil {
		if err := m.feed.UnsubscribeMarket(marketHash); err != nil {
			log.Warn().Err(err).Str("market", marketHash).Msg("unsubscribe failed")
		}
	}
}

// cancelActive fetches the operator's active orders for a market and cancels
// them. Best effort.
func (m *Monitor) cancelActive(ctx context.Context, marketHash string, reason string) {
	active, err := m.exchange.ActiveOrders(ctx, marketHash, m.signer.Maker().Hex(), m.cfg.OrderRetries)
	if err != nil {
		log.Warn().Err(err).Str("market", marketHash).Msg("active orders fetch failed, cancel skipped")
		return
	}
	m.lifecycle.Cancel(ctx, marketHash, orderHashes(active), reason)
}

// runTick evaluates every monitored market. A failure in one market never
// stops the loop or the other markets.
func (m *Monitor) runTick(ctx context.Context) {
	m.tick++
	for _, marketHash := range m.marketKeys() {
		pos, ok := m.positions[marketHash]
		if !ok {
			continue
		}
		m.safeEvaluate(ctx, pos)
	}
}

func (m *Monitor) safeEvaluate(ctx context.Context, pos *Position) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("market", pos.MarketHash).
				Interface("panic", r).
				Msg("market evaluation panicked, isolated")
		}
	}()
	m.evaluateMarket(ctx, pos)
}

// evaluateMarket runs the per-market state machine for one tick.
func (m *Monitor) evaluateMarket(ctx context.Context, pos *Position) {
	marketHash := pos.MarketHash

	if m.tick%snapshotEveryTicks == 0 {
		m.refreshBook(ctx, marketHash)
	}

	fill := m.fills.AggregateFill(marketHash)
	remaining := pos.MaxFill.Sub(fill)

	// 1. Completion check.
	if fill.GreaterThanOrEqual(pos.MaxFill.Mul(tolerance)) || remaining.LessThan(minRemaining) {
		m.complete(marketHash, fill)
		return
	}

	// 2. Vig gate: withdraw when the market is priced against us.
	vig := m.book.Vig(marketHash, pos.MinOrderSize)
	if vig.GreaterThan(pos.MaxVig) {
		log.Info().
			Str("market", marketHash).
			Str("vig", vig.String()).
			Str("maxVig", pos.MaxVig.String()).
			Msg("vig above ceiling, withdrawing")
		m.cancelActive(ctx, marketHash, "vig")
		m.sendStatus(StatusUpdateFill, marketHash, fill)
		return
	}

	// 3. Reconcile the resting slice against the desired price.
	active, err := m.exchange.ActiveOrders(ctx, marketHash, m.signer.Maker().Hex(), m.cfg.OrderRetries)
	if err != nil {
		log.Warn().Err(err).Str("market", marketHash).Msg("active orders fetch failed, skipping cycle")
		return
	}

	if len(active) == 0 {
		if remaining.GreaterThanOrEqual(minRemaining) {
			m.lifecycle.Post(ctx, marketHash, pos.Outcome, decimal.Min(remaining, pos.Increment), pos.Edge, pos.MinOrderSize)
		} else {
			m.complete(marketHash, fill)
			return
		}
	} else {
		desired, ok := m.lifecycle.DesiredOdds(marketHash, pos.Outcome, pos.Edge, pos.MinOrderSize)
		if ok && priceMismatch(active, desired.String()) {
			m.lifecycle.Cancel(ctx, marketHash, orderHashes(active), "reprice")
			if remaining.GreaterThanOrEqual(minRemaining) {
				m.lifecycle.Post(ctx, marketHash, pos.Outcome, decimal.Min(remaining, pos.Increment), pos.Edge, pos.MinOrderSize)
			} else {
				m.complete(marketHash, fill)
				return
			}
		}
		// All resting orders already sit at the desired price: nothing to do.
	}

	m.sendStatus(StatusUpdateFill, marketHash, fill)
}

// complete marks a position filled and removes it from the registry.
func (m *Monitor) complete(marketHash string, fill decimal.Decimal) {
	delete(m.positions, marketHash)
	m.dropMarket(marketHash)
	m.sendStatus(StatusMarkFilled, marketHash, fill)
	log.Info().Str("market", marketHash).Str("fill", fill.String()).Msg("position complete")
}

// priceMismatch reports whether any active order rests at other than the
// desired wire odds.
func priceMismatch(active []exchange.Order, desired string) bool {
	for _, o := range active {
		if o.PercentageOdds != desired {
			return true
		}
	}
	return false
}

func orderHashes(orders []exchange.Order) []string {
	hashes := make([]string, 0, len(orders))
	for _, o := range orders {
		hashes = append(hashes, o.OrderHash)
	}
	return hashes
}

func (m *Monitor) marketKeys() []string {
	keys := make([]string, 0, len(m.positions))
	for k := range m.positions {
		keys = append(keys, k)
	}
	return keys
}

// sendStatus forwards a status message without ever blocking the loop; a
// slow or absent parent just misses updates.
func (m *Monitor) sendStatus(action, marketHash string, fill decimal.Decimal) {
	msg := StatusMessage{Action: action, MarketHash: marketHash, CurrentFill: fill}
	select {
	case m.statusCh <- msg:
	default:
		log.Debug().Str("action", action).Str("market", marketHash).Msg("status channel full, message dropped")
	}
}

// shutdownSweep cancels every registered market's active orders before
// exit. Not atomic across markets; a crash partway through leaves the rest
// resting until apiExpiry.
func (m *Monitor) shutdownSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, marketHash := range m.marketKeys() {
		m.cancelActive(ctx, marketHash, "shutdown")
	}
}

// reconcileTradeHistory logs the venue's historical fill volume against the
// push-feed tracker. Informational only: the tracker stays authoritative.
func (m *Monitor) reconcileTradeHistory(ctx context.Context, marketHash string) {
	volume, err := m.exchange.TradeVolume(ctx, marketHash, m.signer.Maker().Hex())
	if err != nil {
		log.Debug().Err(err).Str("market", marketHash).Msg("trade history unavailable, skipping reconciliation")
		return
	}
	tracked := m.fills.AggregateFill(marketHash)
	if !volume.Equal(tracked) {
		log.Info().
			Str("market", marketHash).
			Str("tradeHistory", volume.String()).
			Str("tracked", tracked.String()).
			Msg("fill reconciliation delta")
	}
}
