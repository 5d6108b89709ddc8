/**
 * @description
 * Package amm prices binary outcome tokens with a fixed-product market maker.
 * A pool holds YES and NO reserves; buying an outcome mints complete sets from the
 * trader's collateral and removes the bought outcome so that yes*no stays constant.
 *
 * Key features:
 * - Prices: p_yes = no / (yes + no) and p_no = yes / (yes + no), always summing to one.
 * - Fees: taken in collateral on every trade and accrued outside the reserves.
 * - Rounding: every amount paid out is rounded down and every reserve kept is rounded
 *   up, so the product never decreases across swaps.
 * - Liquidity: pro-rata LP shares; unbalanced pools return excess outcome tokens.
 */

package amm

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places of the collateral token.
const Precision int32 = 6

const bpsDenominator = 10000

type Outcome string

const (
	Yes Outcome = "YES"
	No  Outcome = "NO"
)

var (
	ErrInvalidOutcome        = errors.New("amm: outcome must be YES or NO")
	ErrInvalidAmount         = errors.New("amm: amount must be positive")
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	ErrSlippageExceeded      = errors.New("amm: output below minimum")
	ErrInvalidFee            = errors.New("amm: fee must be in [0, 10000) bps")
	ErrInvalidShares         = errors.New("amm: share amount exceeds supply")
)

var one = decimal.NewFromInt(1)

// Pool is an immutable view of pool state. Operations return the next state.
type Pool struct {
	YesReserve  decimal.Decimal `json:"yes_reserve"`
	NoReserve   decimal.Decimal `json:"no_reserve"`
	TotalShares decimal.Decimal `json:"total_shares"`
	FeeBps      int64           `json:"fee_bps"`
	FeesAccrued decimal.Decimal `json:"fees_accrued"`
}

// Prices returns the marginal YES and NO prices. An empty pool quotes 0.5/0.5.
func (p Pool) Prices() (yes, no decimal.Decimal) {
	total := p.YesReserve.Add(p.NoReserve)
	if !total.IsPositive() {
		half := decimal.RequireFromString("0.5")
		return half, half
	}
	yes = p.NoReserve.Div(total)
	return yes, one.Sub(yes)
}

// Invariant is yes * no.
func (p Pool) Invariant() decimal.Decimal {
	return p.YesReserve.Mul(p.NoReserve)
}

func (p Pool) funded() bool {
	return p.YesReserve.IsPositive() && p.NoReserve.IsPositive()
}

func (p Pool) feeRate() decimal.Decimal {
	return decimal.NewFromInt(p.FeeBps).Div(decimal.NewFromInt(bpsDenominator))
}

func (p Pool) validate() error {
	if p.FeeBps < 0 || p.FeeBps >= bpsDenominator {
		return ErrInvalidFee
	}
	return nil
}

func validOutcome(o Outcome) bool {
	return o == Yes || o == No
}

// priceOf returns the marginal price of outcome.
func (p Pool) priceOf(o Outcome) decimal.Decimal {
	yes, no := p.Prices()
	if o == Yes {
		return yes
	}
	return no
}

// reserves returns (bought, other) reserves for the outcome.
func (p Pool) reserves(o Outcome) (decimal.Decimal, decimal.Decimal) {
	if o == Yes {
		return p.YesReserve, p.NoReserve
	}
	return p.NoReserve, p.YesReserve
}

func (p Pool) withReserves(o Outcome, bought, other decimal.Decimal) Pool {
	next := p
	if o == Yes {
		next.YesReserve, next.NoReserve = bought, other
	} else {
		next.NoReserve, next.YesReserve = bought, other
	}
	return next
}

// ApplySlippage returns the minimum acceptable output for a tolerance in bps.
func ApplySlippage(amount decimal.Decimal, bps int64) decimal.Decimal {
	if bps <= 0 {
		return amount
	}
	if bps >= bpsDenominator {
		return decimal.Zero
	}
	factor := decimal.NewFromInt(bpsDenominator - bps).Div(decimal.NewFromInt(bpsDenominator))
	return amount.Mul(factor).RoundFloor(Precision)
}

// CheckSlippage fails when actual is below minimum.
func CheckSlippage(actual, minimum decimal.Decimal) error {
	if actual.LessThan(minimum) {
		return ErrSlippageExceeded
	}
	return nil
}

func sqrt(d decimal.Decimal) decimal.Decimal {
	f, ok := new(big.Float).SetPrec(256).SetString(d.String())
	if !ok || f.Sign() <= 0 {
		return decimal.Zero
	}
	root := new(big.Float).SetPrec(256).Sqrt(f)
	out, err := decimal.NewFromString(root.Text('f', 30))
	if err != nil {
		return decimal.Zero
	}
	return out
}
