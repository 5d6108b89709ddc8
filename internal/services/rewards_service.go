package services

import (
	"context"
	"errors"
	"log/slog"

	db "github.com/predikt/backend/internal/db"
	"github.com/shopspring/decimal"
)

// Points awarded per unit of collateral.
var (
	TradePointsPerCollateral     = decimal.NewFromInt(1)
	LiquidityPointsPerCollateral = decimal.NewFromInt(2)
)

const (
	RewardReasonTrade     = "trade"
	RewardReasonSwap      = "swap"
	RewardReasonLiquidity = "liquidity"
)

// RewardsService reads the points ledger. Points are written by the trading
// services inside their own transactions through awardPoints.
type RewardsService struct {
	store  db.Store
	logger *slog.Logger
}

func NewRewardsService(store db.Store, logger *slog.Logger) *RewardsService {
	return &RewardsService{store: store, logger: logger}
}

// RewardSummary is a user's total and recent history.
type RewardSummary struct {
	Owner   string             `json:"owner"`
	Points  decimal.Decimal    `json:"points"`
	History []db.RewardHistory `json:"history"`
}

func (s *RewardsService) Summary(ctx context.Context, owner string, limit int32) (RewardSummary, error) {
	out := RewardSummary{Owner: owner, Points: decimal.Zero}
	pts, err := s.store.GetRewardPoints(ctx, owner)
	switch err := notFound(err); {
	case err == nil:
		out.Points = pts.Points
	case !errors.Is(err, ErrNotFound):
		return RewardSummary{}, err
	}

	history, err := s.store.ListRewardHistory(ctx, db.ListRewardHistoryParams{Owner: owner, Limit: clampLimit(limit, 50, 500)})
	if err != nil {
		return RewardSummary{}, err
	}
	out.History = history
	return out, nil
}

func (s *RewardsService) Leaderboard(ctx context.Context, limit int32) ([]db.RewardPoints, error) {
	return s.store.ListLeaderboard(ctx, clampLimit(limit, 20, 100))
}

// awardPoints credits owner and appends to the history. q must be the
// transaction querier of the operation that earned the points.
func awardPoints(ctx context.Context, q db.Querier, owner string, points decimal.Decimal, reason, refID string) error {
	points = points.Round(6)
	if !points.IsPositive() {
		return nil
	}
	if err := q.AddRewardPoints(ctx, db.AddRewardPointsParams{Owner: owner, Points: points}); err != nil {
		return err
	}
	_, err := q.CreateRewardHistory(ctx, db.CreateRewardHistoryParams{
		Owner:  owner,
		Points: points,
		Reason: reason,
		RefID:  refID,
	})
	return err
}

// clampLimit returns def for non-positive values and caps at max.
func clampLimit(limit, def, max int32) int32 {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
