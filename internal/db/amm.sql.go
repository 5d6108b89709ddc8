package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const upsertAmmPool = `-- name: UpsertAmmPool :one
INSERT INTO amm_pools (address, market_id, yes_reserve, no_reserve, total_shares, fee_bps, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (address) DO UPDATE SET
    yes_reserve = EXCLUDED.yes_reserve,
    no_reserve = EXCLUDED.no_reserve,
    total_shares = EXCLUDED.total_shares,
    fee_bps = EXCLUDED.fee_bps,
    updated_at = now()
RETURNING address, market_id, yes_reserve, no_reserve, total_shares, fee_bps, updated_at
`

type UpsertAmmPoolParams struct {
	Address     string          `json:"address"`
	MarketID    uuid.UUID       `json:"market_id"`
	YesReserve  decimal.Decimal `json:"yes_reserve"`
	NoReserve   decimal.Decimal `json:"no_reserve"`
	TotalShares decimal.Decimal `json:"total_shares"`
	FeeBps      int64           `json:"fee_bps"`
}

func (q *Queries) UpsertAmmPool(ctx context.Context, arg UpsertAmmPoolParams) (AmmPool, error) {
	row := q.db.QueryRow(ctx, upsertAmmPool,
		arg.Address,
		arg.MarketID,
		arg.YesReserve,
		arg.NoReserve,
		arg.TotalShares,
		arg.FeeBps,
	)
	var i AmmPool
	err := row.Scan(&i.Address, &i.MarketID, &i.YesReserve, &i.NoReserve, &i.TotalShares, &i.FeeBps, &i.UpdatedAt)
	return i, err
}

const getAmmPool = `-- name: GetAmmPool :one
SELECT address, market_id, yes_reserve, no_reserve, total_shares, fee_bps, updated_at
FROM amm_pools WHERE address = $1
`

func (q *Queries) GetAmmPool(ctx context.Context, address string) (AmmPool, error) {
	row := q.db.QueryRow(ctx, getAmmPool, address)
	var i AmmPool
	err := row.Scan(&i.Address, &i.MarketID, &i.YesReserve, &i.NoReserve, &i.TotalShares, &i.FeeBps, &i.UpdatedAt)
	return i, err
}

const createAmmSwap = `-- name: CreateAmmSwap :execrows
INSERT INTO amm_swaps (
    id, pool_address, market_id, trader, outcome, side, collateral_amount, token_amount, fee, tx_hash, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
ON CONFLICT (tx_hash) DO NOTHING
`

type CreateAmmSwapParams struct {
	ID               uuid.UUID       `json:"id"`
	PoolAddress      string          `json:"pool_address"`
	MarketID         uuid.UUID       `json:"market_id"`
	Trader           string          `json:"trader"`
	Outcome          Outcome         `json:"outcome"`
	Side             Side            `json:"side"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	TokenAmount      decimal.Decimal `json:"token_amount"`
	Fee              decimal.Decimal `json:"fee"`
	TxHash           string          `json:"tx_hash"`
	CreatedAt        time.Time       `json:"created_at"`
}

// CreateAmmSwap returns 0 when a swap with the same tx hash was already recorded.
func (q *Queries) CreateAmmSwap(ctx context.Context, arg CreateAmmSwapParams) (int64, error) {
	result, err := q.db.Exec(ctx, createAmmSwap,
		arg.ID,
		arg.PoolAddress,
		arg.MarketID,
		arg.Trader,
		arg.Outcome,
		arg.Side,
		arg.CollateralAmount,
		arg.TokenAmount,
		arg.Fee,
		arg.TxHash,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listAmmSwapsByPool = `-- name: ListAmmSwapsByPool :many
SELECT id, pool_address, market_id, trader, outcome, side, collateral_amount, token_amount, fee, tx_hash, created_at
FROM amm_swaps
WHERE pool_address = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListAmmSwapsByPoolParams struct {
	PoolAddress string `json:"pool_address"`
	Limit       int32  `json:"limit"`
}

func (q *Queries) ListAmmSwapsByPool(ctx context.Context, arg ListAmmSwapsByPoolParams) ([]AmmSwap, error) {
	rows, err := q.db.Query(ctx, listAmmSwapsByPool, arg.PoolAddress, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []AmmSwap{}
	for rows.Next() {
		var i AmmSwap
		if err := rows.Scan(
			&i.ID,
			&i.PoolAddress,
			&i.MarketID,
			&i.Trader,
			&i.Outcome,
			&i.Side,
			&i.CollateralAmount,
			&i.TokenAmount,
			&i.Fee,
			&i.TxHash,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getLpPosition = `-- name: GetLpPosition :one
SELECT pool_address, provider, shares FROM lp_positions
WHERE pool_address = $1 AND provider = $2
`

type GetLpPositionParams struct {
	PoolAddress string `json:"pool_address"`
	Provider    string `json:"provider"`
}

func (q *Queries) GetLpPosition(ctx context.Context, arg GetLpPositionParams) (LpPosition, error) {
	row := q.db.QueryRow(ctx, getLpPosition, arg.PoolAddress, arg.Provider)
	var i LpPosition
	err := row.Scan(&i.PoolAddress, &i.Provider, &i.Shares)
	return i, err
}

const addLpShares = `-- name: AddLpShares :one
INSERT INTO lp_positions (pool_address, provider, shares)
VALUES ($1, $2, $3)
ON CONFLICT (pool_address, provider) DO UPDATE SET shares = lp_positions.shares + EXCLUDED.shares
RETURNING pool_address, provider, shares
`

type AddLpSharesParams struct {
	PoolAddress string          `json:"pool_address"`
	Provider    string          `json:"provider"`
	Delta       decimal.Decimal `json:"delta"`
}

func (q *Queries) AddLpShares(ctx context.Context, arg AddLpSharesParams) (LpPosition, error) {
	row := q.db.QueryRow(ctx, addLpShares, arg.PoolAddress, arg.Provider, arg.Delta)
	var i LpPosition
	err := row.Scan(&i.PoolAddress, &i.Provider, &i.Shares)
	return i, err
}
