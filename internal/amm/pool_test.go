package amm

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func balanced(fee int64) Pool {
	return Pool{YesReserve: d("100"), NoReserve: d("100"), TotalShares: d("100"), FeeBps: fee}
}

func TestPrices_SumToOne(t *testing.T) {
	p := Pool{YesReserve: d("30"), NoReserve: d("70")}
	yes, no := p.Prices()
	assert.True(t, yes.Equal(d("0.7")))
	assert.True(t, yes.Add(no).Equal(d("1")))

	yes, no = Pool{}.Prices()
	assert.True(t, yes.Equal(d("0.5")))
	assert.True(t, no.Equal(d("0.5")))
}

func TestQuoteBuy_NoFee(t *testing.T) {
	p := balanced(0)
	q, err := p.QuoteBuy(Yes, d("10"))
	require.NoError(t, err)

	assert.True(t, q.TokenAmount.Equal(d("19.090909")), q.TokenAmount.String())
	assert.True(t, q.Fee.IsZero())
	assert.True(t, q.NewYesPrice.GreaterThan(d("0.5")), "buying YES raises its price")
	assert.True(t, q.NewYesPrice.Add(q.NewNoPrice).Equal(d("1")))
	assert.True(t, q.Next.Invariant().GreaterThanOrEqual(p.Invariant()))
	assert.True(t, q.AvgPrice.GreaterThan(d("0.5")))
	assert.True(t, q.PriceImpact.IsPositive())
}

func TestQuoteBuy_FeeAccrues(t *testing.T) {
	p := balanced(200)
	q, err := p.QuoteBuy(No, d("10"))
	require.NoError(t, err)

	assert.True(t, q.Fee.Equal(d("0.2")))
	assert.True(t, q.Next.FeesAccrued.Equal(d("0.2")))
	noFee, err := balanced(0).QuoteBuy(No, d("10"))
	require.NoError(t, err)
	assert.True(t, q.TokenAmount.LessThan(noFee.TokenAmount))
}

func TestQuoteSell_InverseOfBuy(t *testing.T) {
	p := balanced(0)
	buy, err := p.QuoteBuy(Yes, d("10"))
	require.NoError(t, err)

	sell, err := buy.Next.QuoteSell(Yes, buy.TokenAmount)
	require.NoError(t, err)

	diff := d("10").Sub(sell.CollateralAmount)
	assert.True(t, diff.GreaterThanOrEqual(decimal.Zero), "round trip must not profit")
	assert.True(t, diff.LessThan(d("0.0001")), diff.String())
	assert.True(t, sell.Next.Invariant().GreaterThanOrEqual(p.Invariant()))
}

func TestQuoteSell_InvariantNeverDecreases(t *testing.T) {
	p := Pool{YesReserve: d("250"), NoReserve: d("40"), TotalShares: d("100"), FeeBps: 100}
	for _, amt := range []string{"0.5", "3", "17.25", "120"} {
		q, err := p.QuoteSell(No, d(amt))
		require.NoError(t, err)
		assert.True(t, q.Next.Invariant().GreaterThanOrEqual(p.Invariant()), amt)
		assert.True(t, q.Next.YesReserve.IsPositive())
		assert.True(t, q.Next.NoReserve.IsPositive())
		p = q.Next
	}
}

func TestQuote_Errors(t *testing.T) {
	p := balanced(0)
	_, err := p.QuoteBuy("MAYBE", d("1"))
	assert.ErrorIs(t, err, ErrInvalidOutcome)
	_, err = p.QuoteBuy(Yes, d("0"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = Pool{}.QuoteBuy(Yes, d("1"))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	_, err = p.QuoteSell(Yes, d("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = Pool{YesReserve: d("1"), NoReserve: d("1"), FeeBps: 10000}.QuoteBuy(Yes, d("1"))
	assert.ErrorIs(t, err, ErrInvalidFee)
}

func TestApplySlippage(t *testing.T) {
	assert.True(t, ApplySlippage(d("100"), 50).Equal(d("99.5")))
	assert.True(t, ApplySlippage(d("100"), 0).Equal(d("100")))
	assert.True(t, ApplySlippage(d("100"), 10000).IsZero())
	assert.ErrorIs(t, CheckSlippage(d("99"), d("99.5")), ErrSlippageExceeded)
	assert.NoError(t, CheckSlippage(d("99.5"), d("99.5")))
}

func TestAddLiquidity_Seed(t *testing.T) {
	res, err := Pool{FeeBps: 200}.AddLiquidity(d("100"), d("0.75"))
	require.NoError(t, err)

	yes, _ := res.Next.Prices()
	assert.True(t, yes.Sub(d("0.75")).Abs().LessThan(d("0.000001")), yes.String())
	assert.True(t, res.Shares.Equal(d("100")))
	assert.True(t, res.NoAmount.IsZero())
	assert.True(t, res.YesAmount.IsPositive(), "excess YES is returned")
}

func TestAddLiquidity_ProRata(t *testing.T) {
	p := Pool{YesReserve: d("50"), NoReserve: d("100"), TotalShares: d("100")}
	res, err := p.AddLiquidity(d("10"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, res.Shares.Equal(d("10")))
	assert.True(t, res.YesAmount.Equal(d("5")))
	assert.True(t, res.NoAmount.IsZero())
	before, _ := p.Prices()
	after, _ := res.Next.Prices()
	assert.True(t, before.Equal(after), "adding liquidity keeps prices")
}

func TestRemoveLiquidity(t *testing.T) {
	p := Pool{YesReserve: d("50"), NoReserve: d("100"), TotalShares: d("100")}

	res, err := p.RemoveLiquidity(d("25"))
	require.NoError(t, err)
	assert.True(t, res.YesAmount.Equal(d("12.5")))
	assert.True(t, res.NoAmount.Equal(d("25")))
	assert.True(t, res.Next.TotalShares.Equal(d("75")))

	_, err = p.RemoveLiquidity(d("101"))
	assert.ErrorIs(t, err, ErrInvalidShares)

	all, err := p.RemoveLiquidity(d("100"))
	require.NoError(t, err)
	assert.True(t, all.Next.YesReserve.IsZero())
}

func TestFunded_MatchesAddLiquidity(t *testing.T) {
	seed, err := Pool{}.Funded(d("100"), d("0"), d("0"))
	require.NoError(t, err)
	assert.True(t, seed.Collateral.Equal(d("100")))
	assert.True(t, seed.Next.YesReserve.Equal(d("100")))

	p := Pool{YesReserve: d("50"), NoReserve: d("100"), TotalShares: d("100")}
	want, err := p.AddLiquidity(d("10"), decimal.Zero)
	require.NoError(t, err)

	got, err := p.Funded(want.Shares, want.YesAmount, want.NoAmount)
	require.NoError(t, err)
	assert.True(t, got.Collateral.Equal(d("10")))
	assert.True(t, got.Next.YesReserve.Equal(want.Next.YesReserve))
	assert.True(t, got.Next.NoReserve.Equal(want.Next.NoReserve))
	assert.True(t, got.Next.TotalShares.Equal(want.Next.TotalShares))

	_, err = p.Funded(d("10"), d("11"), d("0"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDefunded(t *testing.T) {
	p := Pool{YesReserve: d("50"), NoReserve: d("100"), TotalShares: d("100")}

	res, err := p.Defunded(d("25"), d("12.5"), d("25"))
	require.NoError(t, err)
	assert.True(t, res.Next.YesReserve.Equal(d("37.5")))
	assert.True(t, res.Next.NoReserve.Equal(d("75")))
	assert.True(t, res.Next.TotalShares.Equal(d("75")))

	_, err = p.Defunded(d("101"), d("1"), d("1"))
	assert.ErrorIs(t, err, ErrInvalidShares)
}
