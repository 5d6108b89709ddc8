package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/predikt/backend/internal/chain"
	"github.com/predikt/backend/internal/clob"
	"github.com/predikt/backend/internal/ctf"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/db/dbtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCTF        = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
	testCollateral = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	testPool       = "0x9A8f92a830A5cB89a3816e3D267CB7791c16b04D"
)

func newMarketFixture(t *testing.T) (*dbtest.MemStore, *MarketService, *OrderService, *recordingPublisher) {
	t.Helper()
	store := dbtest.NewMemStore()
	pub := &recordingPublisher{}
	orders := NewOrderService(store, clob.NewEngine(clob.DefaultTickSize, clob.DefaultMinSize), testDomain, pub, nil, testLogger())
	markets := NewMarketService(store, orders, pub, MarketContracts{ConditionalTokens: testCTF, Collateral: testCollateral}, 200, testLogger())
	markets.SetOracleFeeds([]string{btcFeed})
	return store, markets, orders, pub
}

func validInput() CreateMarketInput {
	return CreateMarketInput{
		Question:    "Will BTC close above 100k this year?",
		Category:    " Crypto ",
		MarketType:  db.MarketTypeCLOB,
		ConditionID: testCondID,
		YesTokenID:  yesToken,
		NoTokenID:   noToken,
		EndTime:     time.Now().Add(24 * time.Hour),
	}
}

func TestCreateMarket_Validation(t *testing.T) {
	_, svc, _, _ := newMarketFixture(t)

	tests := []struct {
		name   string
		mutate func(*CreateMarketInput)
		field  string
	}{
		{"empty question", func(in *CreateMarketInput) { in.Question = "  " }, "question"},
		{"end time in the past", func(in *CreateMarketInput) { in.EndTime = time.Now().Add(-time.Hour) }, "end_time"},
		{"unknown type", func(in *CreateMarketInput) { in.MarketType = "DUTCH" }, "market_type"},
		{"pool without address", func(in *CreateMarketInput) { in.MarketType = db.MarketTypePool }, "pool_address"},
		{"clob with pool", func(in *CreateMarketInput) { in.PoolAddress = testPool }, "pool_address"},
		{"oracle without strike", func(in *CreateMarketInput) { in.OracleFeedID = "0xabc" }, "oracle_feed_id"},
		{"bad event ref", func(in *CreateMarketInput) {
			in.EspnEventID = "401547417"
			in.EspnTeam = "KC"
		}, "espn_event_id"},
		{"event without team", func(in *CreateMarketInput) { in.EspnEventID = "football/nfl/401547417" }, "espn_team"},
		{"oracle and sports", func(in *CreateMarketInput) {
			in.OracleFeedID = "0xabc"
			in.StrikePrice = decimal.NewNullDecimal(dec("100000"))
			in.EspnEventID = "football/nfl/401547417"
			in.EspnTeam = "KC"
		}, "resolution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.CreateMarket(context.Background(), "0xC0", in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCreateMarket_PoolGetsMirror(t *testing.T) {
	store, svc, _, _ := newMarketFixture(t)
	ctx := context.Background()

	in := validInput()
	in.MarketType = db.MarketTypePool
	in.PoolAddress = strings.ToLower(testPool)
	in.OracleFeedID = "0x" + strings.ToUpper(btcFeed)
	in.StrikePrice = decimal.NewNullDecimal(dec("100000"))

	m, err := svc.CreateMarket(ctx, "0xC0", in)
	require.NoError(t, err)
	assert.Equal(t, "crypto", m.Category)
	assert.True(t, m.YesPrice.Equal(dec("0.5")))
	require.NotNil(t, m.PoolAddress)
	assert.Equal(t, testPool, *m.PoolAddress, "pool address is checksummed")
	require.NotNil(t, m.OracleFeedID)
	assert.Equal(t, "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43", *m.OracleFeedID)

	pool, err := store.GetAmmPool(ctx, testPool)
	require.NoError(t, err)
	assert.Equal(t, m.ID, pool.MarketID)
	assert.EqualValues(t, 200, pool.FeeBps)
	assert.True(t, pool.TotalShares.IsZero())
}

func TestCreateMarket_OracleFeedMustBePolled(t *testing.T) {
	_, svc, _, _ := newMarketFixture(t)

	in := validInput()
	in.OracleFeedID = "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"
	in.StrikePrice = decimal.NewNullDecimal(dec("3000"))
	_, err := svc.CreateMarket(context.Background(), "0xC0", in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "oracle_feed_id", verr.Field)

	in.OracleFeedID = "0x" + strings.ToUpper(btcFeed)
	_, err = svc.CreateMarket(context.Background(), "0xC0", in)
	require.NoError(t, err, "feed ids match regardless of case and prefix")

	store := dbtest.NewMemStore()
	unconfigured := NewMarketService(store, nil, nil, MarketContracts{}, 0, testLogger())
	_, err = unconfigured.CreateMarket(context.Background(), "0xC0", in)
	assert.True(t, IsValidation(err), "no feeds are polled")
}

func TestResolveMarket_OnlyManualMarketsAfterEnd(t *testing.T) {
	store, markets, _, _ := newMarketFixture(t)
	ctx := context.Background()
	creator := "0x00000000000000000000000000000000000000C0"
	feed := "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"
	event := "football/nfl/401547417"

	oracle := seedMarket(t, store, func(p *db.CreateMarketParams) { p.OracleFeedID = &feed })
	sports := seedMarket(t, store, func(p *db.CreateMarketParams) { p.EspnEventID = &event })
	markets.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	_, err := markets.ResolveMarket(ctx, creator, oracle.ID, db.OutcomeNo)
	assert.ErrorIs(t, err, ErrAutoResolved)
	_, err = markets.ResolveMarket(ctx, creator, sports.ID, db.OutcomeYes)
	assert.ErrorIs(t, err, ErrAutoResolved)

	got, err := store.GetMarket(ctx, oracle.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Outcome)

	closed := seedMarket(t, store, nil)
	require.NoError(t, markets.CloseMarket(ctx, closed.ID))
	markets.now = time.Now
	_, err = markets.ResolveMarket(ctx, creator, closed.ID, db.OutcomeYes)
	require.NoError(t, err, "a closed market can be resolved before its end time")
}

func TestResolveMarket_SettlesPositionsAndCancelsOrders(t *testing.T) {
	store, markets, orders, pub := newMarketFixture(t)
	ctx := context.Background()
	creator := "0x00000000000000000000000000000000000000C0"
	m := seedMarket(t, store, nil)
	alice := newWallet(t)

	seedPosition(t, store, m.ID, "0xWIN", db.OutcomeYes, "10", "0.4")
	seedPosition(t, store, m.ID, "0xLOSE", db.OutcomeNo, "5", "0.6")
	resting, err := orders.PlaceOrder(ctx, alice.address, m.ID, alice.order(t, db.OutcomeYes, ctf.SideBuy, "0.30", "5", db.OrderTypeGTC))
	require.NoError(t, err)

	_, err = markets.ResolveMarket(ctx, "0xSomeoneElse", m.ID, db.OutcomeYes)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = markets.ResolveMarket(ctx, creator, m.ID, db.OutcomeYes)
	assert.ErrorIs(t, err, ErrMarketStillOpen)

	markets.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	_, err = markets.ResolveMarket(ctx, creator, m.ID, "MAYBE")
	assert.True(t, IsValidation(err))

	resolved, err := markets.ResolveMarket(ctx, strings.ToLower(creator), m.ID, db.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, db.MarketStatusResolved, resolved.Status)
	require.NotNil(t, resolved.Outcome)
	assert.Equal(t, db.OutcomeYes, *resolved.Outcome)

	win := position(t, store, m.ID, "0xWIN", db.OutcomeYes)
	assert.True(t, win.Size.IsZero())
	assert.True(t, win.RealizedPnl.Equal(dec("6")))
	lose := position(t, store, m.ID, "0xLOSE", db.OutcomeNo)
	assert.True(t, lose.RealizedPnl.Equal(dec("-3")))

	order, err := store.GetOrder(ctx, resting.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, db.OrderStatusCancelled, order.Status)
	assert.Empty(t, orders.OrderBook(m.ID, 10).Yes.Bids)

	statuses := pub.statuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, "resolved", statuses[len(statuses)-1].Status)
	assert.Equal(t, "YES", statuses[len(statuses)-1].Outcome)

	_, err = markets.ResolveMarket(ctx, creator, m.ID, db.OutcomeNo)
	assert.ErrorIs(t, err, ErrMarketResolved)
}

func TestResolveMarket_InvalidPaysHalf(t *testing.T) {
	store, markets, _, _ := newMarketFixture(t)
	m := seedMarket(t, store, nil)
	seedPosition(t, store, m.ID, "0xA", db.OutcomeYes, "4", "0.25")

	_, err := markets.resolve(context.Background(), m, db.OutcomeInvalid, ResolutionManual)
	require.NoError(t, err)
	assert.True(t, position(t, store, m.ID, "0xA", db.OutcomeYes).RealizedPnl.Equal(dec("1")))
}

func TestCloseMarket(t *testing.T) {
	store, markets, _, pub := newMarketFixture(t)
	m := seedMarket(t, store, nil)

	require.NoError(t, markets.CloseMarket(context.Background(), m.ID))
	got, err := markets.GetMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, db.MarketStatusClosed, got.Status)
	require.Len(t, pub.statuses(), 1)
	assert.Equal(t, "closed", pub.statuses()[0].Status)
}

func TestCTFCalldata(t *testing.T) {
	store, markets, _, _ := newMarketFixture(t)
	ctx := context.Background()
	m := seedMarket(t, store, nil)

	split, err := markets.CTFCalldata(ctx, m.ID, "split", dec("5"))
	require.NoError(t, err)
	assert.Equal(t, testCTF, split.To)
	assert.Equal(t, "5000000", split.Amount)
	assert.True(t, strings.HasPrefix(split.Data, "0x"))

	merge, err := markets.CTFCalldata(ctx, m.ID, "merge", dec("5"))
	require.NoError(t, err)
	assert.NotEqual(t, split.Data[:10], merge.Data[:10], "different selectors")
	assert.Equal(t, split.Data[10:], merge.Data[10:], "same arguments")

	_, err = markets.CTFCalldata(ctx, m.ID, "redeem", dec("5"))
	assert.True(t, IsValidation(err))
	_, err = markets.CTFCalldata(ctx, m.ID, "split", dec("0"))
	assert.True(t, IsValidation(err))
}

func TestPriceHistory(t *testing.T) {
	store, markets, _, _ := newMarketFixture(t)
	ctx := context.Background()
	m := seedMarket(t, store, nil)

	agg := NewOHLCVAggregator(testLogger(), store)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, agg.UpdatePrice(ctx, m.ID.String(), dec("0.40"), dec("10"), start.Add(10*time.Second)))
	require.NoError(t, agg.UpdatePrice(ctx, m.ID.String(), dec("0.55"), dec("5"), start.Add(20*time.Second)))
	require.NoError(t, agg.UpdatePrice(ctx, m.ID.String(), dec("0.35"), dec("1"), start.Add(30*time.Second)))
	require.NoError(t, agg.FlushAll(ctx))

	bars, err := markets.PriceHistory(ctx, m.ID, "1", start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Open.Equal(dec("0.40")))
	assert.True(t, bars[0].High.Equal(dec("0.55")))
	assert.True(t, bars[0].Low.Equal(dec("0.35")))
	assert.True(t, bars[0].Close.Equal(dec("0.35")))
	assert.True(t, bars[0].Volume.Equal(dec("16")))

	_, err = markets.PriceHistory(ctx, m.ID, "7", start, start.Add(time.Hour))
	assert.True(t, IsValidation(err))
}

func ctfEvent(kind chain.PositionEventKind, holder, amount string) chain.PositionEvent {
	return chain.PositionEvent{
		Kind:        kind,
		Stakeholder: common.HexToAddress(holder),
		ConditionID: common.HexToHash(testCondID),
		Amount:      units(amount),
	}
}

func TestRecordCTFOperation_SplitFundsFirstAskAndMergeRespectsIt(t *testing.T) {
	store, markets, orders, _ := newMarketFixture(t)
	client := newFakeChain()
	markets.SetChain(client)
	ctx := context.Background()
	m := seedMarket(t, store, nil)
	alice := newWallet(t)

	client.positionEvents[common.HexToHash(hashOf(1))] = ctfEvent(chain.PositionSplit, alice.address, "10")
	op, err := markets.RecordCTFOperation(ctx, alice.address, m.ID, hashOf(1))
	require.NoError(t, err)
	assert.Equal(t, "split", op.Op)
	assert.Equal(t, alice.address, op.Owner)
	yes := position(t, store, m.ID, alice.address, db.OutcomeYes)
	assert.True(t, yes.Size.Equal(dec("10")))
	assert.True(t, yes.AvgPrice.Equal(dec("0.5")))
	assert.True(t, position(t, store, m.ID, alice.address, db.OutcomeNo).Size.Equal(dec("10")))

	_, err = markets.RecordCTFOperation(ctx, alice.address, m.ID, hashOf(1))
	assert.ErrorIs(t, err, ErrTxRecorded)

	_, err = orders.PlaceOrder(ctx, alice.address, m.ID, alice.order(t, db.OutcomeYes, ctf.SideSell, "0.60", "8", db.OrderTypeGTC))
	require.NoError(t, err, "split shares can be offered on an empty book")

	client.positionEvents[common.HexToHash(hashOf(2))] = ctfEvent(chain.PositionMerge, alice.address, "5")
	_, err = markets.RecordCTFOperation(ctx, alice.address, m.ID, hashOf(2))
	assert.ErrorIs(t, err, ErrInsufficientPosition, "8 of the 10 YES are committed to the ask")
	assert.True(t, position(t, store, m.ID, alice.address, db.OutcomeYes).Size.Equal(dec("10")))

	client.positionEvents[common.HexToHash(hashOf(3))] = ctfEvent(chain.PositionMerge, alice.address, "2")
	_, err = markets.RecordCTFOperation(ctx, alice.address, m.ID, hashOf(3))
	require.NoError(t, err)
	assert.True(t, position(t, store, m.ID, alice.address, db.OutcomeYes).Size.Equal(dec("8")))
	assert.True(t, position(t, store, m.ID, alice.address, db.OutcomeNo).Size.Equal(dec("8")))
}

func TestRecordCTFOperation_Rejects(t *testing.T) {
	store, markets, _, _ := newMarketFixture(t)
	ctx := context.Background()
	m := seedMarket(t, store, nil)
	holder := "0x00000000000000000000000000000000000000b1"

	_, err := markets.RecordCTFOperation(ctx, holder, m.ID, hashOf(1))
	assert.ErrorIs(t, err, chain.ErrChainDisabled)

	client := newFakeChain()
	markets.SetChain(client)

	client.positionEvents[common.HexToHash(hashOf(1))] = ctfEvent(chain.PositionSplit, lpWallet, "10")
	_, err = markets.RecordCTFOperation(ctx, holder, m.ID, hashOf(1))
	assert.ErrorIs(t, err, ErrForbidden)

	other := ctfEvent(chain.PositionSplit, holder, "10")
	other.ConditionID = common.HexToHash("0x01")
	client.positionEvents[common.HexToHash(hashOf(2))] = other
	_, err = markets.RecordCTFOperation(ctx, holder, m.ID, hashOf(2))
	assert.True(t, IsValidation(err))

	client.proxies[common.HexToAddress(holder)] = common.HexToAddress(testProxy)
	client.positionEvents[common.HexToHash(hashOf(3))] = ctfEvent(chain.PositionSplit, testProxy, "4")
	op, err := markets.RecordCTFOperation(ctx, holder, m.ID, hashOf(3))
	require.NoError(t, err)
	assert.True(t, position(t, store, m.ID, op.Owner, db.OutcomeNo).Size.Equal(dec("4")), "the proxy wallet holds the tokens")

	pool := seedMarket(t, store, func(p *db.CreateMarketParams) { p.MarketType = db.MarketTypePool })
	_, err = markets.RecordCTFOperation(ctx, holder, pool.ID, hashOf(4))
	assert.ErrorIs(t, err, ErrWrongMarketType)

	_, err = markets.RecordCTFOperation(ctx, holder, m.ID, "0xzz")
	assert.True(t, IsValidation(err))
}
