package dbtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/predikt/backend/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	boom := errors.New("boom")
	err := s.ExecTx(ctx, func(q db.Querier) error {
		_, err := q.CreateMarket(ctx, db.CreateMarketParams{
			ID: uuid.New(), Question: "q", MarketType: db.MarketTypeCLOB, EndTime: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	markets, err := s.ListMarkets(ctx, db.ListMarketsParams{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, markets)
}

func TestExecTx_Commits(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.ExecTx(ctx, func(q db.Querier) error {
		return q.AddRewardPoints(ctx, db.AddRewardPointsParams{Owner: "0xabc", Points: decimal.NewFromInt(3)})
	}))

	p, err := s.GetRewardPoints(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, p.Points.Equal(decimal.NewFromInt(3)))
}

func TestConsumeUserNonce(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	proxy := db.ConsumeUserNonceParams{Address: "0xabc", Kind: db.NonceKindProxy, Nonce: 0}

	n, err := s.ConsumeUserNonce(ctx, proxy)
	require.NoError(t, err)
	assert.Zero(t, n, "missing row must not be consumed")

	require.NoError(t, s.EnsureUserNonce(ctx, db.EnsureUserNonceParams{Address: "0xabc", Kind: db.NonceKindProxy}))
	n, err = s.ConsumeUserNonce(ctx, proxy)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.ConsumeUserNonce(ctx, proxy)
	require.NoError(t, err)
	assert.Zero(t, n, "stale nonce must be rejected")

	current, err := s.GetUserNonce(ctx, db.GetUserNonceParams{Address: "0xabc", Kind: db.NonceKindProxy})
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)

	exchange, err := s.GetUserNonce(ctx, db.GetUserNonceParams{Address: "0xabc", Kind: db.NonceKindExchange})
	require.NoError(t, err)
	assert.Zero(t, exchange, "each kind counts on its own")
}

func TestConsumeAuthChallenge_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.UpsertAuthChallenge(ctx, db.UpsertAuthChallengeParams{Address: "0xabc", Nonce: "n1", ExpiresAt: time.Now().Add(time.Minute)}))

	c, err := s.ConsumeAuthChallenge(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "n1", c.Nonce)

	_, err = s.ConsumeAuthChallenge(ctx, "0xabc")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestClaimTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	arg := db.ClaimTransactionParams{TxHash: "0xbeef", Kind: "ctf_split"}

	n, err := s.ClaimTransaction(ctx, arg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.ClaimTransaction(ctx, arg)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertPosition_RejectsNegativeSize(t *testing.T) {
	s := NewMemStore()
	_, err := s.UpsertPosition(context.Background(), db.UpsertPositionParams{
		MarketID: uuid.New(), Owner: "0xabc", Outcome: db.OutcomeYes, Size: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, ErrCheckViolation)
}

func TestGetFirstPythPriceAfter(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, price := range []int64{100, 110, 120} {
		_, err := s.InsertPythPriceUpdate(ctx, db.InsertPythPriceUpdateParams{
			FeedID: "0xfeed", Price: decimal.NewFromInt(price), PublishTime: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	p, err := s.GetFirstPythPriceAfter(ctx, db.GetFirstPythPriceAfterParams{FeedID: "0xfeed", PublishTime: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(110)))

	_, err = s.GetFirstPythPriceAfter(ctx, db.GetFirstPythPriceAfterParams{FeedID: "0xfeed", PublishTime: base.Add(time.Hour)})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestCreateAmmSwap_IdempotentByTxHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	arg := db.CreateAmmSwapParams{ID: uuid.New(), PoolAddress: "0xpool", TxHash: "0xdead"}
	n, err := s.CreateAmmSwap(ctx, arg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	arg.ID = uuid.New()
	n, err = s.CreateAmmSwap(ctx, arg)
	require.NoError(t, err)
	assert.Zero(t, n)

	swaps, err := s.ListAmmSwapsByPool(ctx, db.ListAmmSwapsByPoolParams{PoolAddress: "0xpool", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, swaps, 1)
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.FailOn("GetMarket", errors.New("down"))

	_, err := s.GetMarket(ctx, uuid.New())
	require.EqualError(t, err, "down")

	s.FailOn("GetMarket", nil)
	_, err = s.GetMarket(ctx, uuid.New())
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
