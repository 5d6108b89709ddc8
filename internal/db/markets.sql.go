package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const marketColumns = `id, question, description, category, market_type, status, outcome, condition_id,
yes_token_id, no_token_id, pool_address, oracle_feed_id, strike_price, espn_event_id, espn_team,
yes_price, no_price, volume, end_time, resolved_at, created_by, created_at`

func scanMarket(row pgx.Row) (Market, error) {
	var i Market
	err := row.Scan(
		&i.ID,
		&i.Question,
		&i.Description,
		&i.Category,
		&i.MarketType,
		&i.Status,
		&i.Outcome,
		&i.ConditionID,
		&i.YesTokenID,
		&i.NoTokenID,
		&i.PoolAddress,
		&i.OracleFeedID,
		&i.StrikePrice,
		&i.EspnEventID,
		&i.EspnTeam,
		&i.YesPrice,
		&i.NoPrice,
		&i.Volume,
		&i.EndTime,
		&i.ResolvedAt,
		&i.CreatedBy,
		&i.CreatedAt,
	)
	return i, err
}

func collectMarkets(rows pgx.Rows) ([]Market, error) {
	defer rows.Close()
	items := []Market{}
	for rows.Next() {
		i, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createMarket = `-- name: CreateMarket :one
INSERT INTO markets (
    id, question, description, category, market_type, status, condition_id, yes_token_id, no_token_id,
    pool_address, oracle_feed_id, strike_price, espn_event_id, espn_team, yes_price, no_price, end_time, created_by
) VALUES (
    $1, $2, $3, $4, $5, 'open', $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
)
RETURNING ` + marketColumns

type CreateMarketParams struct {
	ID           uuid.UUID           `json:"id"`
	Question     string              `json:"question"`
	Description  string              `json:"description"`
	Category     string              `json:"category"`
	MarketType   MarketType          `json:"market_type"`
	ConditionID  string              `json:"condition_id"`
	YesTokenID   string              `json:"yes_token_id"`
	NoTokenID    string              `json:"no_token_id"`
	PoolAddress  *string             `json:"pool_address"`
	OracleFeedID *string             `json:"oracle_feed_id"`
	StrikePrice  decimal.NullDecimal `json:"strike_price"`
	EspnEventID  *string             `json:"espn_event_id"`
	EspnTeam     *string             `json:"espn_team"`
	YesPrice     decimal.Decimal     `json:"yes_price"`
	NoPrice      decimal.Decimal     `json:"no_price"`
	EndTime      time.Time           `json:"end_time"`
	CreatedBy    string              `json:"created_by"`
}

func (q *Queries) CreateMarket(ctx context.Context, arg CreateMarketParams) (Market, error) {
	row := q.db.QueryRow(ctx, createMarket,
		arg.ID,
		arg.Question,
		arg.Description,
		arg.Category,
		arg.MarketType,
		arg.ConditionID,
		arg.YesTokenID,
		arg.NoTokenID,
		arg.PoolAddress,
		arg.OracleFeedID,
		arg.StrikePrice,
		arg.EspnEventID,
		arg.EspnTeam,
		arg.YesPrice,
		arg.NoPrice,
		arg.EndTime,
		arg.CreatedBy,
	)
	return scanMarket(row)
}

const getMarket = `-- name: GetMarket :one
SELECT ` + marketColumns + ` FROM markets WHERE id = $1`

func (q *Queries) GetMarket(ctx context.Context, id uuid.UUID) (Market, error) {
	return scanMarket(q.db.QueryRow(ctx, getMarket, id))
}

const listMarkets = `-- name: ListMarkets :many
SELECT ` + marketColumns + ` FROM markets
WHERE ($1::TEXT = '' OR category = $1)
  AND ($2::TEXT = '' OR status = $2)
  AND ($3::TEXT = '' OR market_type = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5`

type ListMarketsParams struct {
	Category   string `json:"category"`
	Status     string `json:"status"`
	MarketType string `json:"market_type"`
	Limit      int32  `json:"limit"`
	Offset     int32  `json:"offset"`
}

func (q *Queries) ListMarkets(ctx context.Context, arg ListMarketsParams) ([]Market, error) {
	rows, err := q.db.Query(ctx, listMarkets, arg.Category, arg.Status, arg.MarketType, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectMarkets(rows)
}

const listMarketsPastEnd = `-- name: ListMarketsPastEnd :many
SELECT ` + marketColumns + ` FROM markets
WHERE status <> 'resolved' AND end_time <= $1
ORDER BY end_time`

func (q *Queries) ListMarketsPastEnd(ctx context.Context, now time.Time) ([]Market, error) {
	rows, err := q.db.Query(ctx, listMarketsPastEnd, now)
	if err != nil {
		return nil, err
	}
	return collectMarkets(rows)
}

const updateMarketPrices = `-- name: UpdateMarketPrices :exec
UPDATE markets SET yes_price = $2, no_price = $3, volume = volume + $4
WHERE id = $1`

type UpdateMarketPricesParams struct {
	ID          uuid.UUID       `json:"id"`
	YesPrice    decimal.Decimal `json:"yes_price"`
	NoPrice     decimal.Decimal `json:"no_price"`
	VolumeDelta decimal.Decimal `json:"volume_delta"`
}

func (q *Queries) UpdateMarketPrices(ctx context.Context, arg UpdateMarketPricesParams) error {
	_, err := q.db.Exec(ctx, updateMarketPrices, arg.ID, arg.YesPrice, arg.NoPrice, arg.VolumeDelta)
	return err
}

const setMarketStatus = `-- name: SetMarketStatus :exec
UPDATE markets SET status = $2 WHERE id = $1 AND status <> 'resolved'`

type SetMarketStatusParams struct {
	ID     uuid.UUID    `json:"id"`
	Status MarketStatus `json:"status"`
}

func (q *Queries) SetMarketStatus(ctx context.Context, arg SetMarketStatusParams) error {
	_, err := q.db.Exec(ctx, setMarketStatus, arg.ID, arg.Status)
	return err
}

const resolveMarket = `-- name: ResolveMarket :one
UPDATE markets SET status = 'resolved', outcome = $2, resolved_at = $3
WHERE id = $1 AND status <> 'resolved'
RETURNING ` + marketColumns

type ResolveMarketParams struct {
	ID         uuid.UUID `json:"id"`
	Outcome    Outcome   `json:"outcome"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ResolveMarket returns pgx.ErrNoRows when the market is missing or already resolved.
func (q *Queries) ResolveMarket(ctx context.Context, arg ResolveMarketParams) (Market, error) {
	return scanMarket(q.db.QueryRow(ctx, resolveMarket, arg.ID, arg.Outcome, arg.ResolvedAt))
}
