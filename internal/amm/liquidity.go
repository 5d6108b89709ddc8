package amm

import (
	"github.com/shopspring/decimal"
)

// LiquidityResult is the effect of adding or removing liquidity.
// YesAmount and NoAmount are outcome tokens sent to the provider.
type LiquidityResult struct {
	Shares     decimal.Decimal `json:"shares"`
	Collateral decimal.Decimal `json:"collateral"`
	YesAmount  decimal.Decimal `json:"yes_amount"`
	NoAmount   decimal.Decimal `json:"no_amount"`
	Next       Pool            `json:"-"`
}

// AddLiquidity mints complete sets from collateral. The first deposit seeds
// the pool at yesPrice (zero means 0.5); later deposits are split pro rata
// to the existing reserves and the unbalanced remainder is returned.
func (p Pool) AddLiquidity(collateral, yesPrice decimal.Decimal) (LiquidityResult, error) {
	if err := p.validate(); err != nil {
		return LiquidityResult{}, err
	}
	if !collateral.IsPositive() {
		return LiquidityResult{}, ErrInvalidAmount
	}

	if !p.TotalShares.IsPositive() {
		return p.seed(collateral, yesPrice)
	}

	weight := decimal.Max(p.YesReserve, p.NoReserve)
	if !weight.IsPositive() {
		return LiquidityResult{}, ErrInsufficientLiquidity
	}
	addYes := collateral.Mul(p.YesReserve).Div(weight).RoundFloor(Precision)
	addNo := collateral.Mul(p.NoReserve).Div(weight).RoundFloor(Precision)
	shares := collateral.Mul(p.TotalShares).Div(weight).RoundFloor(Precision)

	next := p
	next.YesReserve = p.YesReserve.Add(addYes)
	next.NoReserve = p.NoReserve.Add(addNo)
	next.TotalShares = p.TotalShares.Add(shares)

	return LiquidityResult{
		Shares:     shares,
		Collateral: collateral,
		YesAmount:  collateral.Sub(addYes),
		NoAmount:   collateral.Sub(addNo),
		Next:       next,
	}, nil
}

func (p Pool) seed(collateral, yesPrice decimal.Decimal) (LiquidityResult, error) {
	if yesPrice.IsZero() {
		yesPrice = decimal.RequireFromString("0.5")
	}
	if !yesPrice.IsPositive() || yesPrice.GreaterThanOrEqual(one) {
		return LiquidityResult{}, ErrInvalidAmount
	}

	// p_yes = no / (yes + no): the cheaper outcome keeps the larger reserve.
	yes, no := collateral, collateral
	if yesPrice.GreaterThan(decimal.RequireFromString("0.5")) {
		yes = collateral.Mul(one.Sub(yesPrice)).Div(yesPrice).RoundFloor(Precision)
	} else {
		no = collateral.Mul(yesPrice).Div(one.Sub(yesPrice)).RoundFloor(Precision)
	}
	if !yes.IsPositive() || !no.IsPositive() {
		return LiquidityResult{}, ErrInvalidAmount
	}

	next := p
	next.YesReserve = yes
	next.NoReserve = no
	next.TotalShares = collateral
	return LiquidityResult{
		Shares:     collateral,
		Collateral: collateral,
		YesAmount:  collateral.Sub(yes),
		NoAmount:   collateral.Sub(no),
		Next:       next,
	}, nil
}

// RemoveLiquidity burns shares for a proportional cut of both reserves.
func (p Pool) RemoveLiquidity(shares decimal.Decimal) (LiquidityResult, error) {
	if !shares.IsPositive() {
		return LiquidityResult{}, ErrInvalidAmount
	}
	if shares.GreaterThan(p.TotalShares) {
		return LiquidityResult{}, ErrInvalidShares
	}

	next := p
	var yesOut, noOut decimal.Decimal
	if shares.Equal(p.TotalShares) {
		yesOut, noOut = p.YesReserve, p.NoReserve
		next.YesReserve, next.NoReserve = decimal.Zero, decimal.Zero
	} else {
		yesOut = p.YesReserve.Mul(shares).Div(p.TotalShares).RoundFloor(Precision)
		noOut = p.NoReserve.Mul(shares).Div(p.TotalShares).RoundFloor(Precision)
		next.YesReserve = p.YesReserve.Sub(yesOut)
		next.NoReserve = p.NoReserve.Sub(noOut)
	}
	next.TotalShares = p.TotalShares.Sub(shares)

	return LiquidityResult{
		Shares:    shares,
		YesAmount: yesOut,
		NoAmount:  noOut,
		Next:      next,
	}, nil
}

// Funded applies a confirmed funding to the pool: shares were minted and
// yesBack/noBack outcome tokens were returned to the funder. The collateral
// deposited is shares on the first funding and shares * weight / supply after.
func (p Pool) Funded(shares, yesBack, noBack decimal.Decimal) (LiquidityResult, error) {
	if !shares.IsPositive() || yesBack.IsNegative() || noBack.IsNegative() {
		return LiquidityResult{}, ErrInvalidAmount
	}
	collateral := shares
	if p.TotalShares.IsPositive() {
		weight := decimal.Max(p.YesReserve, p.NoReserve)
		if !weight.IsPositive() {
			return LiquidityResult{}, ErrInsufficientLiquidity
		}
		collateral = shares.Mul(weight).Div(p.TotalShares).RoundCeil(Precision)
	}
	if yesBack.GreaterThan(collateral) || noBack.GreaterThan(collateral) {
		return LiquidityResult{}, ErrInvalidAmount
	}

	next := p
	next.YesReserve = p.YesReserve.Add(collateral.Sub(yesBack))
	next.NoReserve = p.NoReserve.Add(collateral.Sub(noBack))
	next.TotalShares = p.TotalShares.Add(shares)
	return LiquidityResult{
		Shares:     shares,
		Collateral: collateral,
		YesAmount:  yesBack,
		NoAmount:   noBack,
		Next:       next,
	}, nil
}

// Defunded applies a confirmed withdrawal: shares were burnt and yesOut/noOut
// outcome tokens left the pool.
func (p Pool) Defunded(shares, yesOut, noOut decimal.Decimal) (LiquidityResult, error) {
	if !shares.IsPositive() || yesOut.IsNegative() || noOut.IsNegative() {
		return LiquidityResult{}, ErrInvalidAmount
	}
	if shares.GreaterThan(p.TotalShares) {
		return LiquidityResult{}, ErrInvalidShares
	}

	next := p
	next.YesReserve = decimal.Max(p.YesReserve.Sub(yesOut), decimal.Zero)
	next.NoReserve = decimal.Max(p.NoReserve.Sub(noOut), decimal.Zero)
	next.TotalShares = p.TotalShares.Sub(shares)
	return LiquidityResult{
		Shares:    shares,
		YesAmount: yesOut,
		NoAmount:  noOut,
		Next:      next,
	}, nil
}
