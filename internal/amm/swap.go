package amm

import (
	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Quote describes a swap and the pool state after it.
type Quote struct {
	Outcome          Outcome         `json:"outcome"`
	Side             Side            `json:"side"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	TokenAmount      decimal.Decimal `json:"token_amount"`
	Fee              decimal.Decimal `json:"fee"`
	AvgPrice         decimal.Decimal `json:"avg_price"`
	PriceImpact      decimal.Decimal `json:"price_impact"`
	NewYesPrice      decimal.Decimal `json:"new_yes_price"`
	NewNoPrice       decimal.Decimal `json:"new_no_price"`
	Next             Pool            `json:"-"`
}

func (p Pool) finishQuote(q Quote, next Pool) Quote {
	before := p.priceOf(q.Outcome)
	q.Next = next
	q.NewYesPrice, q.NewNoPrice = next.Prices()
	after := next.priceOf(q.Outcome)
	if before.IsPositive() {
		q.PriceImpact = after.Sub(before).Div(before).Abs()
	}
	if q.TokenAmount.IsPositive() {
		gross := q.CollateralAmount
		if q.Side == Sell {
			gross = q.CollateralAmount.Add(q.Fee)
		}
		q.AvgPrice = gross.Div(q.TokenAmount)
	}
	return q
}

// QuoteBuy prices spending collateral on outcome. The fee is taken first; the
// rest mints complete sets into the pool and the bought side is withdrawn
// down to k / other.
func (p Pool) QuoteBuy(outcome Outcome, collateral decimal.Decimal) (Quote, error) {
	if !validOutcome(outcome) {
		return Quote{}, ErrInvalidOutcome
	}
	if err := p.validate(); err != nil {
		return Quote{}, err
	}
	if !collateral.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}
	if !p.funded() {
		return Quote{}, ErrInsufficientLiquidity
	}

	fee := collateral.Mul(p.feeRate()).RoundCeil(Precision)
	net := collateral.Sub(fee)
	if !net.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}

	k := p.Invariant()
	bought, other := p.reserves(outcome)
	other = other.Add(net)
	keep := k.DivRound(other, Precision+12).RoundCeil(Precision)
	tokensOut := bought.Add(net).Sub(keep)
	if !tokensOut.IsPositive() {
		return Quote{}, ErrInsufficientLiquidity
	}

	next := p.withReserves(outcome, keep, other)
	next.FeesAccrued = p.FeesAccrued.Add(fee)

	return p.finishQuote(Quote{
		Outcome:          outcome,
		Side:             Buy,
		CollateralAmount: collateral,
		TokenAmount:      tokensOut,
		Fee:              fee,
	}, next), nil
}

// QuoteSell prices selling tokens of outcome back to the pool. The pool
// absorbs the tokens and merges r complete sets, where r solves
// (bought + tokens - r) * (other - r) = k; the trader receives r minus the fee.
func (p Pool) QuoteSell(outcome Outcome, tokens decimal.Decimal) (Quote, error) {
	if !validOutcome(outcome) {
		return Quote{}, ErrInvalidOutcome
	}
	if err := p.validate(); err != nil {
		return Quote{}, err
	}
	if !tokens.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}
	if !p.funded() {
		return Quote{}, ErrInsufficientLiquidity
	}

	bought, other := p.reserves(outcome)
	s := bought.Add(tokens).Add(other)
	disc := s.Mul(s).Sub(decimal.NewFromInt(4).Mul(tokens).Mul(other))
	r := s.Sub(sqrt(disc)).Div(decimal.NewFromInt(2)).RoundFloor(Precision)
	if !r.IsPositive() || r.GreaterThanOrEqual(other) {
		return Quote{}, ErrInsufficientLiquidity
	}

	fee := r.Mul(p.feeRate()).RoundCeil(Precision)
	payout := r.Sub(fee)
	if !payout.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}

	next := p.withReserves(outcome, bought.Add(tokens).Sub(r), other.Sub(r))
	next.FeesAccrued = p.FeesAccrued.Add(fee)

	return p.finishQuote(Quote{
		Outcome:          outcome,
		Side:             Sell,
		CollateralAmount: payout,
		TokenAmount:      tokens,
		Fee:              fee,
	}, next), nil
}
