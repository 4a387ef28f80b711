package maker

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/icebot/internal/config"
	"github.com/web3guy0/icebot/internal/exchange"
	"github.com/web3guy0/icebot/internal/feed"
	"github.com/web3guy0/icebot/internal/signer"
)

// Throwaway key, never funded.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const (
	testMarket    = "0x3cba25f2253035b015b9bb555c1bf900f6737704d57425dd2a5b60e929c33b81"
	externalMaker = "0x1111111111111111111111111111111111111111"

	// Order hashes travel through cancellation signing as bytes32, so they
	// must be well-formed 32-byte hex.
	mineHash  = "0xaaaa25f2253035b015b9bb555c1bf900f6737704d57425dd2a5b60e929c33b01"
	staleHash = "0xbbbb25f2253035b015b9bb555c1bf900f6737704d57425dd2a5b60e929c33b02"

	// 0.40 opposing price with 2% edge: taker 0.60 * 0.98 = 0.588, laddered
	// down to 0.5875.
	opposingOdds = "40000000000000000000"
	desiredOdds  = "58750000000000000000"
)

type fakeExchange struct {
	active      []exchange.Order
	activeErr   error
	snapshot    []exchange.Order
	snapshotErr error
	posted      []*exchange.SignedOrder
	postErr     error
	postPanics  bool
	cancelled   [][]string
	cancelErr   error
	volume      decimal.Decimal
	volumeErr   error

	activeCalls int
	cancelCalls int
}

func (f *fakeExchange) ActiveOrders(ctx context.Context, marketHash, maker string, retries int) ([]exchange.Order, error) {
	f.activeCalls++
	return f.active, f.activeErr
}

func (f *fakeExchange) Orders(ctx context.Context, marketHash string) ([]exchange.Order, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakeExchange) PostOrder(ctx context.Context, order *exchange.SignedOrder) (string, error) {
	if f.postPanics {
		panic("venue exploded")
	}
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posted = append(f.posted, order)
	return fmt.Sprintf("0xposted%d", len(f.posted)), nil
}

func (f *fakeExchange) CancelOrders(ctx context.Context, req *exchange.CancelRequest) (int, error) {
	f.cancelCalls++
	if f.cancelErr != nil {
		return 0, f.cancelErr
	}
	f.cancelled = append(f.cancelled, req.OrderHashes)
	return len(req.OrderHashes), nil
}

func (f *fakeExchange) TradeVolume(ctx context.Context, marketHash, bettor string) (decimal.Decimal, error) {
	return f.volume, f.volumeErr
}

type fakeFeed struct {
	marketSubs   []string
	marketUnsubs []string
	ownSubs      []string
}

func (f *fakeFeed) SubscribeMarket(marketHash string) error {
	f.marketSubs = append(f.marketSubs, marketHash)
	return nil
}

func (f *fakeFeed) UnsubscribeMarket(marketHash string) error {
	f.marketUnsubs = append(f.marketUnsubs, marketHash)
	return nil
}

func (f *fakeFeed) SubscribeOwnOrders(baseToken, maker string) error {
	f.ownSubs = append(f.ownSubs, baseToken+":"+maker)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		SXAPIURL:            "http://localhost",
		BaseToken:           "0x6629Ce1Cf35Cc1329ebB4F63202F3f197b3F050B",
		BaseTokenDecimals:   6,
		ExecutorAddress:     "0x3E91A92D0f99E63fbc56f6b90B5B66a64a5e9a2b",
		ChainID:             4162,
		TickInterval:        3500 * time.Millisecond,
		PostCooldown:        0,
		RequestTimeout:      time.Second,
		OrderRetryDelay:     time.Millisecond,
		OrderRetries:        1,
		BookRetention:       10 * time.Minute,
		DefaultEdge:         decimal.NewFromInt(2),
		DefaultMaxVig:       decimal.NewFromFloat(0.05),
		DefaultMinOrderSize: decimal.NewFromInt(10),
	}
}

func newTestMonitor(t *testing.T, ex *fakeExchange) (*Monitor, *fakeFeed) {
	t.Helper()
	sg, err := signer.New(testKey, 4162)
	require.NoError(t, err)
	fd := &fakeFeed{}
	return NewMonitor(testConfig(), ex, sg, fd, nil), fd
}

func dptr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func startMsg(maxFill, increment float64, mutate func(*PositionConfig)) ControlMessage {
	pc := &PositionConfig{MaxFill: dptr(maxFill), Increment: dptr(increment)}
	if mutate != nil {
		mutate(pc)
	}
	return ControlMessage{Action: ActionStart, MarketHash: testMarket, Config: pc}
}

// bookOrder is one external resting order in the REST snapshot shape, priced
// in wire odds with a human-unit size.
func bookOrder(hash string, outcomeOne bool, wireOdds string, size int64) exchange.Order {
	return exchange.Order{
		OrderHash:                hash,
		MarketHash:               testMarket,
		Maker:                    externalMaker,
		TotalBetSize:             fmt.Sprintf("%d000000", size),
		PercentageOdds:           wireOdds,
		IsMakerBettingOutcomeOne: outcomeOne,
	}
}

// ownFillUpdate is a push-feed record reporting matched stake on one of the
// operator's own orders.
func ownFillUpdate(m *Monitor, orderHash string, matched int64, active bool) feed.Update {
	return feed.Update{
		Channel: "active_orders:token:maker",
		Orders: []feed.OrderRecord{{
			OrderHash:                orderHash,
			MarketHash:               testMarket,
			Maker:                    m.signer.Maker().Hex(),
			Active:                   active,
			FillAmount:               big.NewInt(matched * 1_000_000),
			TotalBetSize:             big.NewInt(250 * 1_000_000),
			PercentageOdds:           mustWire(desiredOdds),
			IsMakerBettingOutcomeOne: true,
		}},
	}
}

func mustWire(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func drainStatus(m *Monitor) []StatusMessage {
	var out []StatusMessage
	for {
		select {
		case s := <-m.Status():
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestStartPostsFirstSlice(t *testing.T) {
	ex := &fakeExchange{snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)}}
	m, fd := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))
	require.Contains(t, fd.marketSubs, testMarket)
	require.True(t, m.isRegistered(testMarket))

	m.runTick(ctx)

	require.Len(t, ex.posted, 1)
	o := ex.posted[0]
	assert.Equal(t, testMarket, o.MarketHash)
	assert.Equal(t, desiredOdds, o.PercentageOdds)
	assert.Equal(t, "250000000", o.TotalBetSize)
	assert.True(t, o.IsMakerBettingOutcomeOne)
	assert.Equal(t, int64(exchange.SentinelExpiry), o.Expiry)
	assert.NotEmpty(t, o.Signature)

	statuses := drainStatus(m)
	require.NotEmpty(t, statuses)
	assert.Equal(t, StatusUpdateFill, statuses[len(statuses)-1].Action)
}

func TestIcebergRunsToCompletion(t *testing.T) {
	ex := &fakeExchange{snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)}}
	m, fd := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))

	// Four slices of 250, each reported fully matched before the next tick.
	for i := 1; i <= 4; i++ {
		m.runTick(ctx)
		require.Len(t, ex.posted, i, "tick %d should post slice %d", i, i)
		m.applyFeedUpdate(ownFillUpdate(m, fmt.Sprintf("0xslice%d", i), 250, false))
	}

	m.runTick(ctx)

	assert.Len(t, ex.posted, 4, "no post after max fill reached")
	assert.False(t, m.isRegistered(testMarket))
	assert.Contains(t, fd.marketUnsubs, testMarket)

	statuses := drainStatus(m)
	require.NotEmpty(t, statuses)
	final := statuses[len(statuses)-1]
	assert.Equal(t, StatusMarkFilled, final.Action)
	assert.True(t, final.CurrentFill.Equal(decimal.NewFromInt(1000)), "got %s", final.CurrentFill)
}

func TestCompletionTolerance(t *testing.T) {
	ex := &fakeExchange{snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)}}
	m, _ := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))

	// 995 of 1000 filled: above the 99% tolerance, position completes without
	// resting the 5-unit remainder.
	m.applyFeedUpdate(ownFillUpdate(m, "0xslice1", 995, false))
	m.runTick(ctx)

	assert.Empty(t, ex.posted)
	assert.False(t, m.isRegistered(testMarket))
}

func TestVigGateWithdraws(t *testing.T) {
	ex := &fakeExchange{
		snapshot: []exchange.Order{
			bookOrder("0xo1", true, "43000000000000000000", 250),
			bookOrder("0xo2", false, "50000000000000000000", 250),
		},
		active: []exchange.Order{{OrderHash: mineHash, MarketHash: testMarket, PercentageOdds: desiredOdds}},
	}
	m, _ := newTestMonitor(t, ex)
	ctx := context.Background()

	// Book vig is (1-0.43)+(1-0.50)-1 = 0.07, above the 0.02 ceiling.
	m.handleControl(ctx, startMsg(1000, 250, func(pc *PositionConfig) {
		pc.MaxVig = dptr(0.02)
	}))
	m.runTick(ctx)

	require.Len(t, ex.cancelled, 1)
	assert.Equal(t, []string{mineHash}, ex.cancelled[0])
	assert.Empty(t, ex.posted, "no post while vig is above ceiling")
	assert.True(t, m.isRegistered(testMarket), "vig withdrawal keeps the position monitored")
}

func TestRepriceOnMismatch(t *testing.T) {
	ex := &fakeExchange{
		snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)},
		active:   []exchange.Order{{OrderHash: staleHash, MarketHash: testMarket, PercentageOdds: "50000000000000000000"}},
	}
	m, _ := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))
	m.runTick(ctx)

	require.Len(t, ex.cancelled, 1)
	assert.Equal(t, []string{staleHash}, ex.cancelled[0])
	require.Len(t, ex.posted, 1)
	assert.Equal(t, desiredOdds, ex.posted[0].PercentageOdds)
}

func TestRestingAtDesiredPriceLeftAlone(t *testing.T) {
	ex := &fakeExchange{
		snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)},
		active:   []exchange.Order{{OrderHash: mineHash, MarketHash: testMarket, PercentageOdds: desiredOdds}},
	}
	m, _ := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))
	m.runTick(ctx)

	assert.Empty(t, ex.posted)
	assert.Zero(t, ex.cancelCalls)
}

func TestActiveOrdersFailureSkipsCycle(t *testing.T) {
	ex := &fakeExchange{
		snapshot:  []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)},
		activeErr: fmt.Errorf("venue unreachable"),
	}
	m, _ := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))
	m.runTick(ctx)

	assert.Empty(t, ex.posted)
	assert.True(t, m.isRegistered(testMarket), "transient failure must not drop the position")

	// Next tick recovers.
	ex.activeErr = nil
	m.runTick(ctx)
	assert.Len(t, ex.posted, 1)
}

func TestEvaluationPanicIsolated(t *testing.T) {
	ex := &fakeExchange{
		snapshot:   []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)},
		postPanics: true,
	}
	m, _ := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))

	assert.NotPanics(t, func() { m.runTick(ctx) })
	assert.True(t, m.isRegistered(testMarket))

	ex.postPanics = false
	m.runTick(ctx)
	assert.Len(t, ex.posted, 1)
}

func TestStopCancelsAndDrops(t *testing.T) {
	ex := &fakeExchange{
		snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)},
		active:   []exchange.Order{{OrderHash: mineHash, MarketHash: testMarket, PercentageOdds: desiredOdds}},
	}
	m, fd := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))
	m.handleControl(ctx, ControlMessage{Action: ActionStop, MarketHash: testMarket})

	assert.False(t, m.isRegistered(testMarket))
	require.Len(t, ex.cancelled, 1)
	assert.Equal(t, []string{mineHash}, ex.cancelled[0])
	assert.Contains(t, fd.marketUnsubs, testMarket)
	assert.Empty(t, m.book.Snapshot(testMarket))
}

func TestStopAllTerminates(t *testing.T) {
	ex := &fakeExchange{snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)}}
	m, _ := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))

	terminate := m.handleControl(ctx, ControlMessage{Action: ActionStopAll})

	assert.True(t, terminate)
	assert.False(t, m.isRegistered(testMarket))
}

func TestUpdateMergesIntoPosition(t *testing.T) {
	ex := &fakeExchange{snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)}}
	m, _ := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))
	m.handleControl(ctx, ControlMessage{
		Action:     ActionUpdate,
		MarketHash: testMarket,
		Config:     &PositionConfig{MaxFill: dptr(500), Edge: dptr(5)},
	})

	pos := m.positions[testMarket]
	require.NotNil(t, pos)
	assert.True(t, pos.MaxFill.Equal(decimal.NewFromInt(500)))
	assert.True(t, pos.Edge.Equal(decimal.NewFromInt(5)))
	assert.True(t, pos.Increment.Equal(decimal.NewFromInt(250)), "unset fields untouched")
}

func TestUpdateForUnknownMarketIgnored(t *testing.T) {
	m, _ := newTestMonitor(t, &fakeExchange{})
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.handleControl(ctx, ControlMessage{
			Action:     ActionUpdate,
			MarketHash: testMarket,
			Config:     &PositionConfig{Edge: dptr(5)},
		})
	})
}

func TestStartMissingSizingRejected(t *testing.T) {
	m, fd := newTestMonitor(t, &fakeExchange{})
	ctx := context.Background()

	m.handleControl(ctx, ControlMessage{
		Action:     ActionStart,
		MarketHash: testMarket,
		Config:     &PositionConfig{MaxFill: dptr(1000)},
	})

	assert.False(t, m.isRegistered(testMarket))
	assert.Empty(t, fd.marketSubs)
}

func TestDuplicateStartAppliesAsUpdate(t *testing.T) {
	ex := &fakeExchange{snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)}}
	m, fd := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))
	m.handleControl(ctx, startMsg(2000, 250, nil))

	assert.Len(t, fd.marketSubs, 1, "no duplicate subscription")
	assert.True(t, m.positions[testMarket].MaxFill.Equal(decimal.NewFromInt(2000)))
}

func TestForceRefreshAllEvaluatesImmediately(t *testing.T) {
	ex := &fakeExchange{snapshot: []exchange.Order{bookOrder("0xopp", false, opposingOdds, 250)}}
	m, _ := newTestMonitor(t, ex)
	ctx := context.Background()

	m.handleControl(ctx, startMsg(1000, 250, nil))
	m.handleControl(ctx, ControlMessage{Action: ActionForceRefreshAll})

	assert.Len(t, ex.posted, 1)
}
