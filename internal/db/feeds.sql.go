package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const insertPythPriceUpdate = `-- name: InsertPythPriceUpdate :execrows
INSERT INTO pyth_price_updates (feed_id, price, conf, expo, publish_time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (feed_id, publish_time) DO NOTHING
`

type InsertPythPriceUpdateParams struct {
	FeedID      string          `json:"feed_id"`
	Price       decimal.Decimal `json:"price"`
	Conf        decimal.Decimal `json:"conf"`
	Expo        int32           `json:"expo"`
	PublishTime time.Time       `json:"publish_time"`
}

// InsertPythPriceUpdate returns 0 when the (feed, publish time) pair is already stored.
func (q *Queries) InsertPythPriceUpdate(ctx context.Context, arg InsertPythPriceUpdateParams) (int64, error) {
	result, err := q.db.Exec(ctx, insertPythPriceUpdate, arg.FeedID, arg.Price, arg.Conf, arg.Expo, arg.PublishTime)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getLatestPythPrice = `-- name: GetLatestPythPrice :one
SELECT id, feed_id, price, conf, expo, publish_time, created_at
FROM pyth_price_updates
WHERE feed_id = $1
ORDER BY publish_time DESC
LIMIT 1
`

func (q *Queries) GetLatestPythPrice(ctx context.Context, feedID string) (PythPriceUpdate, error) {
	row := q.db.QueryRow(ctx, getLatestPythPrice, feedID)
	var i PythPriceUpdate
	err := row.Scan(&i.ID, &i.FeedID, &i.Price, &i.Conf, &i.Expo, &i.PublishTime, &i.CreatedAt)
	return i, err
}

const getFirstPythPriceAfter = `-- name: GetFirstPythPriceAfter :one
SELECT id, feed_id, price, conf, expo, publish_time, created_at
FROM pyth_price_updates
WHERE feed_id = $1 AND publish_time >= $2
ORDER BY publish_time ASC
LIMIT 1
`

type GetFirstPythPriceAfterParams struct {
	FeedID      string    `json:"feed_id"`
	PublishTime time.Time `json:"publish_time"`
}

// GetFirstPythPriceAfter returns the earliest update published at or after PublishTime.
func (q *Queries) GetFirstPythPriceAfter(ctx context.Context, arg GetFirstPythPriceAfterParams) (PythPriceUpdate, error) {
	row := q.db.QueryRow(ctx, getFirstPythPriceAfter, arg.FeedID, arg.PublishTime)
	var i PythPriceUpdate
	err := row.Scan(&i.ID, &i.FeedID, &i.Price, &i.Conf, &i.Expo, &i.PublishTime, &i.CreatedAt)
	return i, err
}

const insertMarketPriceHistory = `-- name: InsertMarketPriceHistory :exec
INSERT INTO market_price_history (time, market_id, resolution, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (market_id, resolution, time) DO UPDATE SET
    high = GREATEST(market_price_history.high, EXCLUDED.high),
    low = LEAST(market_price_history.low, EXCLUDED.low),
    close = EXCLUDED.close,
    volume = EXCLUDED.volume
`

type InsertMarketPriceHistoryParams struct {
	Time       pgtype.Timestamptz `json:"time"`
	MarketID   string             `json:"market_id"`
	Resolution string             `json:"resolution"`
	Open       decimal.Decimal    `json:"open"`
	High       decimal.Decimal    `json:"high"`
	Low        decimal.Decimal    `json:"low"`
	Close      decimal.Decimal    `json:"close"`
	Volume     decimal.Decimal    `json:"volume"`
}

func (q *Queries) InsertMarketPriceHistory(ctx context.Context, arg InsertMarketPriceHistoryParams) error {
	_, err := q.db.Exec(ctx, insertMarketPriceHistory,
		arg.Time,
		arg.MarketID,
		arg.Resolution,
		arg.Open,
		arg.High,
		arg.Low,
		arg.Close,
		arg.Volume,
	)
	return err
}

const getMarketPriceHistory = `-- name: GetMarketPriceHistory :many
SELECT time, market_id, resolution, open, high, low, close, volume
FROM market_price_history
WHERE market_id = $1 AND resolution = $2 AND time >= $3 AND time <= $4
ORDER BY time ASC
`

type GetMarketPriceHistoryParams struct {
	MarketID   string             `json:"market_id"`
	Resolution string             `json:"resolution"`
	Time       pgtype.Timestamptz `json:"time"`
	Time_2     pgtype.Timestamptz `json:"time_2"`
}

func (q *Queries) GetMarketPriceHistory(ctx context.Context, arg GetMarketPriceHistoryParams) ([]MarketPriceHistory, error) {
	rows, err := q.db.Query(ctx, getMarketPriceHistory, arg.MarketID, arg.Resolution, arg.Time, arg.Time_2)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MarketPriceHistory{}
	for rows.Next() {
		var i MarketPriceHistory
		if err := rows.Scan(
			&i.Time,
			&i.MarketID,
			&i.Resolution,
			&i.Open,
			&i.High,
			&i.Low,
			&i.Close,
			&i.Volume,
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
