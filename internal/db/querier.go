package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Querier interface {
	AddLpShares(ctx context.Context, arg AddLpSharesParams) (LpPosition, error)
	AddRewardPoints(ctx context.Context, arg AddRewardPointsParams) error
	ClaimTransaction(ctx context.Context, arg ClaimTransactionParams) (int64, error)
	ConsumeAuthChallenge(ctx context.Context, address string) (AuthChallenge, error)
	ConsumeUserNonce(ctx context.Context, arg ConsumeUserNonceParams) (int64, error)
	CreateAmmSwap(ctx context.Context, arg CreateAmmSwapParams) (int64, error)
	CreateApiKey(ctx context.Context, arg CreateApiKeyParams) (ApiKey, error)
	CreateComment(ctx context.Context, arg CreateCommentParams) (Comment, error)
	CreateMarket(ctx context.Context, arg CreateMarketParams) (Market, error)
	CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error)
	CreateOrderFill(ctx context.Context, arg CreateOrderFillParams) (OrderFill, error)
	CreateRelayedTransaction(ctx context.Context, arg CreateRelayedTransactionParams) (int64, error)
	CreateRewardHistory(ctx context.Context, arg CreateRewardHistoryParams) (RewardHistory, error)
	EnsureUserNonce(ctx context.Context, arg EnsureUserNonceParams) error
	GetAmmPool(ctx context.Context, address string) (AmmPool, error)
	GetApiKeyByPrefix(ctx context.Context, prefix string) (ApiKey, error)
	GetAuthChallenge(ctx context.Context, address string) (AuthChallenge, error)
	GetComment(ctx context.Context, id uuid.UUID) (Comment, error)
	GetFirstPythPriceAfter(ctx context.Context, arg GetFirstPythPriceAfterParams) (PythPriceUpdate, error)
	GetLatestPythPrice(ctx context.Context, feedID string) (PythPriceUpdate, error)
	GetLpPosition(ctx context.Context, arg GetLpPositionParams) (LpPosition, error)
	GetMarket(ctx context.Context, id uuid.UUID) (Market, error)
	GetMarketPriceHistory(ctx context.Context, arg GetMarketPriceHistoryParams) ([]MarketPriceHistory, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	GetPosition(ctx context.Context, arg GetPositionParams) (Position, error)
	GetRewardPoints(ctx context.Context, owner string) (RewardPoints, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByWallet(ctx context.Context, walletAddress string) (User, error)
	GetUserNonce(ctx context.Context, arg GetUserNonceParams) (int64, error)
	InsertMarketPriceHistory(ctx context.Context, arg InsertMarketPriceHistoryParams) error
	InsertPythPriceUpdate(ctx context.Context, arg InsertPythPriceUpdateParams) (int64, error)
	ListAmmSwapsByPool(ctx context.Context, arg ListAmmSwapsByPoolParams) ([]AmmSwap, error)
	ListApiKeysByUser(ctx context.Context, userID uuid.UUID) ([]ApiKey, error)
	ListCommentsByMarket(ctx context.Context, marketID uuid.UUID) ([]Comment, error)
	ListFillsByMarket(ctx context.Context, arg ListFillsByMarketParams) ([]OrderFill, error)
	ListLeaderboard(ctx context.Context, limit int32) ([]RewardPoints, error)
	ListMarkets(ctx context.Context, arg ListMarketsParams) ([]Market, error)
	ListMarketsPastEnd(ctx context.Context, now time.Time) ([]Market, error)
	ListOrdersByMaker(ctx context.Context, arg ListOrdersByMakerParams) ([]Order, error)
	ListOrdersByMarket(ctx context.Context, arg ListOrdersByMarketParams) ([]Order, error)
	ListPositionsByMarket(ctx context.Context, marketID uuid.UUID) ([]Position, error)
	ListPositionsByOwner(ctx context.Context, owner string) ([]Position, error)
	ListRestingOrders(ctx context.Context) ([]Order, error)
	ListRewardHistory(ctx context.Context, arg ListRewardHistoryParams) ([]RewardHistory, error)
	ResolveMarket(ctx context.Context, arg ResolveMarketParams) (Market, error)
	RevokeApiKey(ctx context.Context, arg RevokeApiKeyParams) (int64, error)
	SetMarketStatus(ctx context.Context, arg SetMarketStatusParams) error
	UpdateMarketPrices(ctx context.Context, arg UpdateMarketPricesParams) error
	UpdateOrderFill(ctx context.Context, arg UpdateOrderFillParams) error
	UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) error
	UpsertAmmPool(ctx context.Context, arg UpsertAmmPoolParams) (AmmPool, error)
	UpsertAuthChallenge(ctx context.Context, arg UpsertAuthChallengeParams) error
	UpsertPosition(ctx context.Context, arg UpsertPositionParams) (Position, error)
	UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error)
}

var _ Querier = (*Queries)(nil)
