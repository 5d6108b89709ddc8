package services

import (
	"context"
	"testing"
	"time"

	"github.com/predikt/backend/internal/clob"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/db/dbtest"
	"github.com/predikt/backend/internal/espn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const btcFeed = "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"

func newResolverFixture(t *testing.T) (*dbtest.MemStore, *ResolverService, *fakeSports, *recordingPublisher) {
	t.Helper()
	store := dbtest.NewMemStore()
	pub := &recordingPublisher{}
	orders := NewOrderService(store, clob.NewEngine(clob.DefaultTickSize, clob.DefaultMinSize), testDomain, pub, nil, testLogger())
	markets := NewMarketService(store, orders, pub, MarketContracts{}, 200, testLogger())
	sports := &fakeSports{competitions: map[string]*espn.Competition{}}
	return store, NewResolverService(store, markets, sports, testLogger()), sports, pub
}

func oracleMarket(t *testing.T, store *dbtest.MemStore, strike string, end time.Time) db.Market {
	feed := btcFeed
	return seedMarket(t, store, func(p *db.CreateMarketParams) {
		p.OracleFeedID = &feed
		p.StrikePrice = decimal.NewNullDecimal(dec(strike))
		p.EndTime = end
	})
}

func sportsMarket(t *testing.T, store *dbtest.MemStore, ref, team string, end time.Time) db.Market {
	return seedMarket(t, store, func(p *db.CreateMarketParams) {
		p.EspnEventID = &ref
		p.EspnTeam = &team
		p.EndTime = end
	})
}

func storePrice(t *testing.T, store *dbtest.MemStore, price string, at time.Time) {
	t.Helper()
	_, err := store.InsertPythPriceUpdate(context.Background(), db.InsertPythPriceUpdateParams{
		FeedID:      btcFeed,
		Price:       dec(price),
		Conf:        dec("5"),
		Expo:        -8,
		PublishTime: at,
	})
	require.NoError(t, err)
}

func competition(state string, completed bool, winners ...string) *espn.Competition {
	c := &espn.Competition{ID: "401547417"}
	c.Status.Type.Name = state
	c.Status.Type.Completed = completed
	for _, abbr := range []string{"KC", "PHI"} {
		won := false
		for _, w := range winners {
			won = won || w == abbr
		}
		c.Competitors = append(c.Competitors, espn.Competitor{Winner: won, Team: espn.Team{Abbreviation: abbr}})
	}
	return c
}

func TestResolver_Oracle(t *testing.T) {
	store, svc, _, pub := newResolverFixture(t)
	ctx := context.Background()
	end := time.Now().Add(-time.Minute)

	above := oracleMarket(t, store, "60000", end)
	storePrice(t, store, "59000", end.Add(-time.Second))

	res, err := svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Closed: 1}, res, "a price from before the end time does not count")

	storePrice(t, store, "61000.5", end.Add(time.Second))
	below := oracleMarket(t, store, "70000", end)

	res, err = svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Closed: 1, Resolved: 2}, res)

	m, err := store.GetMarket(ctx, above.ID)
	require.NoError(t, err)
	assert.Equal(t, db.MarketStatusResolved, m.Status)
	require.NotNil(t, m.Outcome)
	assert.Equal(t, db.OutcomeYes, *m.Outcome)

	m, err = store.GetMarket(ctx, below.ID)
	require.NoError(t, err)
	require.NotNil(t, m.Outcome)
	assert.Equal(t, db.OutcomeNo, *m.Outcome)

	res, err = svc.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.NotEmpty(t, pub.statuses())
}

func TestResolver_OracleUsesFirstPriceAfterEnd(t *testing.T) {
	store, svc, _, _ := newResolverFixture(t)
	ctx := context.Background()
	end := time.Now().Add(-time.Hour)

	m := oracleMarket(t, store, "60000", end)
	storePrice(t, store, "59500", end.Add(2*time.Second))
	storePrice(t, store, "65000", end.Add(30*time.Minute))

	res, err := svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Closed: 1, Resolved: 1}, res)

	got, err := store.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, db.OutcomeNo, *got.Outcome, "a later price cannot change the settlement")
}

func TestResolver_Sports(t *testing.T) {
	store, svc, sports, _ := newResolverFixture(t)
	ctx := context.Background()
	end := time.Now().Add(-time.Hour)

	won := sportsMarket(t, store, "football/nfl/1", "kc", end)
	lost := sportsMarket(t, store, "football/nfl/2", "KC", end)
	drawn := sportsMarket(t, store, "soccer/eng.1/3", "KC", end)
	postponed := sportsMarket(t, store, "football/nfl/4", "KC", end)
	live := sportsMarket(t, store, "football/nfl/5", "KC", end)
	missing := sportsMarket(t, store, "football/nfl/6", "KC", end)

	sports.competitions["football/nfl/1"] = competition("STATUS_FINAL", true, "KC")
	sports.competitions["football/nfl/2"] = competition("STATUS_FINAL", true, "PHI")
	sports.competitions["soccer/eng.1/3"] = competition("STATUS_FULL_TIME", true)
	sports.competitions["football/nfl/4"] = competition("STATUS_POSTPONED", false)
	sports.competitions["football/nfl/5"] = competition("STATUS_IN_PROGRESS", false)

	res, err := svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Closed: 6, Resolved: 4}, res)

	want := []struct {
		market  db.Market
		outcome db.Outcome
	}{
		{won, db.OutcomeYes},
		{lost, db.OutcomeNo},
		{drawn, db.OutcomeInvalid},
		{postponed, db.OutcomeInvalid},
	}
	for _, w := range want {
		m, err := store.GetMarket(ctx, w.market.ID)
		require.NoError(t, err)
		require.NotNil(t, m.Outcome, *w.market.EspnEventID)
		assert.Equal(t, w.outcome, *m.Outcome, *w.market.EspnEventID)
	}

	for _, pending := range []db.Market{live, missing} {
		m, err := store.GetMarket(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, db.MarketStatusClosed, m.Status)
	}
}

func TestResolver_ManualMarketsOnlyClose(t *testing.T) {
	store, svc, sports, _ := newResolverFixture(t)
	ctx := context.Background()

	manual := seedMarket(t, store, func(p *db.CreateMarketParams) { p.EndTime = time.Now().Add(-time.Minute) })
	seedMarket(t, store, nil)

	res, err := svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Closed: 1}, res)
	assert.Zero(t, sports.calls)

	m, err := store.GetMarket(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, db.MarketStatusClosed, m.Status)
}
