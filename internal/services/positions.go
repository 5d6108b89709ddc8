package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	db "github.com/predikt/backend/internal/db"
	"github.com/shopspring/decimal"
)

// Settlement payouts per share. An INVALID market pays each outcome half.
var (
	payoutWin     = decimal.NewFromInt(1)
	payoutInvalid = decimal.RequireFromString("0.5")
)

func loadPosition(ctx context.Context, q db.Querier, marketID uuid.UUID, owner string, outcome db.Outcome) (db.Position, error) {
	pos, err := q.GetPosition(ctx, db.GetPositionParams{MarketID: marketID, Owner: owner, Outcome: outcome})
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return db.Position{MarketID: marketID, Owner: owner, Outcome: outcome}, nil
		}
		return db.Position{}, err
	}
	return pos, nil
}

// requireUnreserved fails with ErrInsufficientPosition unless owner holds
// need shares of outcome beyond the reserved size already resting in asks.
func requireUnreserved(ctx context.Context, q db.Querier, marketID uuid.UUID, owner string, outcome db.Outcome, reserved, need decimal.Decimal) error {
	pos, err := loadPosition(ctx, q, marketID, owner, outcome)
	if err != nil {
		return err
	}
	if pos.Size.Sub(reserved).LessThan(need) {
		return ErrInsufficientPosition
	}
	return nil
}

// applyBuy adds size shares bought at price, updating the volume weighted average.
func applyBuy(ctx context.Context, q db.Querier, marketID uuid.UUID, owner string, outcome db.Outcome, size, price decimal.Decimal) error {
	pos, err := loadPosition(ctx, q, marketID, owner, outcome)
	if err != nil {
		return err
	}
	newSize := pos.Size.Add(size)
	avg := price
	if newSize.IsPositive() && pos.Size.IsPositive() {
		avg = pos.Size.Mul(pos.AvgPrice).Add(size.Mul(price)).Div(newSize).Round(6)
	}
	_, err = q.UpsertPosition(ctx, db.UpsertPositionParams{
		MarketID:    marketID,
		Owner:       owner,
		Outcome:     outcome,
		Size:        newSize,
		AvgPrice:    avg,
		RealizedPnl: pos.RealizedPnl,
	})
	return err
}

// applySell removes size shares sold at price and realises the difference to the average price.
func applySell(ctx context.Context, q db.Querier, marketID uuid.UUID, owner string, outcome db.Outcome, size, price decimal.Decimal) error {
	pos, err := loadPosition(ctx, q, marketID, owner, outcome)
	if err != nil {
		return err
	}
	newSize := pos.Size.Sub(size)
	if newSize.IsNegative() {
		return ErrInsufficientPosition
	}
	realized := pos.RealizedPnl.Add(price.Sub(pos.AvgPrice).Mul(size))
	avg := pos.AvgPrice
	if !newSize.IsPositive() {
		avg = decimal.Zero
	}
	_, err = q.UpsertPosition(ctx, db.UpsertPositionParams{
		MarketID:    marketID,
		Owner:       owner,
		Outcome:     outcome,
		Size:        newSize,
		AvgPrice:    avg,
		RealizedPnl: realized.Round(6),
	})
	return err
}

// settlePositions pays out every open position of a resolved market.
func settlePositions(ctx context.Context, q db.Querier, marketID uuid.UUID, outcome db.Outcome) error {
	positions, err := q.ListPositionsByMarket(ctx, marketID)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		if !pos.Size.IsPositive() {
			continue
		}
		payout := decimal.Zero
		switch {
		case outcome == db.OutcomeInvalid:
			payout = payoutInvalid
		case pos.Outcome == outcome:
			payout = payoutWin
		}
		realized := pos.RealizedPnl.Add(payout.Sub(pos.AvgPrice).Mul(pos.Size))
		if _, err := q.UpsertPosition(ctx, db.UpsertPositionParams{
			MarketID:    pos.MarketID,
			Owner:       pos.Owner,
			Outcome:     pos.Outcome,
			Size:        decimal.Zero,
			AvgPrice:    decimal.Zero,
			RealizedPnl: realized.Round(6),
		}); err != nil {
			return err
		}
	}
	return nil
}

// complement returns 1 - p.
func complement(p decimal.Decimal) decimal.Decimal {
	return payoutWin.Sub(p)
}

// pricesAfterTrade returns (yes, no) after a trade of outcome at price.
func pricesAfterTrade(outcome db.Outcome, price decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if outcome == db.OutcomeYes {
		return price, complement(price)
	}
	return complement(price), price
}
