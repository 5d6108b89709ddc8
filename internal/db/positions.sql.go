package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func collectPositions(rows pgx.Rows) ([]Position, error) {
	defer rows.Close()
	items := []Position{}
	for rows.Next() {
		var i Position
		if err := rows.Scan(&i.MarketID, &i.Owner, &i.Outcome, &i.Size, &i.AvgPrice, &i.RealizedPnl); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPosition = `-- name: GetPosition :one
SELECT market_id, owner, outcome, size, avg_price, realized_pnl FROM positions
WHERE market_id = $1 AND owner = $2 AND outcome = $3
`

type GetPositionParams struct {
	MarketID uuid.UUID `json:"market_id"`
	Owner    string    `json:"owner"`
	Outcome  Outcome   `json:"outcome"`
}

func (q *Queries) GetPosition(ctx context.Context, arg GetPositionParams) (Position, error) {
	row := q.db.QueryRow(ctx, getPosition, arg.MarketID, arg.Owner, arg.Outcome)
	var i Position
	err := row.Scan(&i.MarketID, &i.Owner, &i.Outcome, &i.Size, &i.AvgPrice, &i.RealizedPnl)
	return i, err
}

const upsertPosition = `-- name: UpsertPosition :one
INSERT INTO positions (market_id, owner, outcome, size, avg_price, realized_pnl)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (market_id, owner, outcome) DO UPDATE SET
    size = EXCLUDED.size,
    avg_price = EXCLUDED.avg_price,
    realized_pnl = EXCLUDED.realized_pnl
RETURNING market_id, owner, outcome, size, avg_price, realized_pnl
`

type UpsertPositionParams struct {
	MarketID    uuid.UUID       `json:"market_id"`
	Owner       string          `json:"owner"`
	Outcome     Outcome         `json:"outcome"`
	Size        decimal.Decimal `json:"size"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
}

func (q *Queries) UpsertPosition(ctx context.Context, arg UpsertPositionParams) (Position, error) {
	row := q.db.QueryRow(ctx, upsertPosition, arg.MarketID, arg.Owner, arg.Outcome, arg.Size, arg.AvgPrice, arg.RealizedPnl)
	var i Position
	err := row.Scan(&i.MarketID, &i.Owner, &i.Outcome, &i.Size, &i.AvgPrice, &i.RealizedPnl)
	return i, err
}

const listPositionsByOwner = `-- name: ListPositionsByOwner :many
SELECT market_id, owner, outcome, size, avg_price, realized_pnl FROM positions
WHERE owner = $1
ORDER BY market_id, outcome
`

func (q *Queries) ListPositionsByOwner(ctx context.Context, owner string) ([]Position, error) {
	rows, err := q.db.Query(ctx, listPositionsByOwner, owner)
	if err != nil {
		return nil, err
	}
	return collectPositions(rows)
}

const listPositionsByMarket = `-- name: ListPositionsByMarket :many
SELECT market_id, owner, outcome, size, avg_price, realized_pnl FROM positions
WHERE market_id = $1
ORDER BY owner, outcome
`

func (q *Queries) ListPositionsByMarket(ctx context.Context, marketID uuid.UUID) ([]Position, error) {
	rows, err := q.db.Query(ctx, listPositionsByMarket, marketID)
	if err != nil {
		return nil, err
	}
	return collectPositions(rows)
}
