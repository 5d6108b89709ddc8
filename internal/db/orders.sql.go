package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, market_id, maker, outcome, side, price, size, filled, order_type, status,
salt, nonce, expiration, signature, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.MarketID,
		&i.Maker,
		&i.Outcome,
		&i.Side,
		&i.Price,
		&i.Size,
		&i.Filled,
		&i.OrderType,
		&i.Status,
		&i.Salt,
		&i.Nonce,
		&i.Expiration,
		&i.Signature,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
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

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    id, market_id, maker, outcome, side, price, size, filled, order_type, status, salt, nonce, expiration, signature, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15
)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	ID         uuid.UUID       `json:"id"`
	MarketID   uuid.UUID       `json:"market_id"`
	Maker      string          `json:"maker"`
	Outcome    Outcome         `json:"outcome"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Filled     decimal.Decimal `json:"filled"`
	OrderType  OrderType       `json:"order_type"`
	Status     OrderStatus     `json:"status"`
	Salt       string          `json:"salt"`
	Nonce      int64           `json:"nonce"`
	Expiration *time.Time      `json:"expiration"`
	Signature  string          `json:"signature"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.ID,
		arg.MarketID,
		arg.Maker,
		arg.Outcome,
		arg.Side,
		arg.Price,
		arg.Size,
		arg.Filled,
		arg.OrderType,
		arg.Status,
		arg.Salt,
		arg.Nonce,
		arg.Expiration,
		arg.Signature,
		arg.CreatedAt,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const listOrdersByMarket = `-- name: ListOrdersByMarket :many
SELECT ` + orderColumns + ` FROM orders
WHERE market_id = $1 AND ($2::TEXT = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3`

type ListOrdersByMarketParams struct {
	MarketID uuid.UUID `json:"market_id"`
	Status   string    `json:"status"`
	Limit    int32     `json:"limit"`
}

func (q *Queries) ListOrdersByMarket(ctx context.Context, arg ListOrdersByMarketParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByMarket, arg.MarketID, arg.Status, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const listOrdersByMaker = `-- name: ListOrdersByMaker :many
SELECT ` + orderColumns + ` FROM orders
WHERE maker = $1
ORDER BY created_at DESC
LIMIT $2`

type ListOrdersByMakerParams struct {
	Maker string `json:"maker"`
	Limit int32  `json:"limit"`
}

func (q *Queries) ListOrdersByMaker(ctx context.Context, arg ListOrdersByMakerParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByMaker, arg.Maker, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const listRestingOrders = `-- name: ListRestingOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE status IN ('open', 'partial')
ORDER BY created_at, id`

func (q *Queries) ListRestingOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.Query(ctx, listRestingOrders)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const updateOrderFill = `-- name: UpdateOrderFill :exec
UPDATE orders SET filled = $2, status = $3, updated_at = now() WHERE id = $1`

type UpdateOrderFillParams struct {
	ID     uuid.UUID       `json:"id"`
	Filled decimal.Decimal `json:"filled"`
	Status OrderStatus     `json:"status"`
}

func (q *Queries) UpdateOrderFill(ctx context.Context, arg UpdateOrderFillParams) error {
	_, err := q.db.Exec(ctx, updateOrderFill, arg.ID, arg.Filled, arg.Status)
	return err
}

const updateOrderStatus = `-- name: UpdateOrderStatus :exec
UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

type UpdateOrderStatusParams struct {
	ID     uuid.UUID   `json:"id"`
	Status OrderStatus `json:"status"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) error {
	_, err := q.db.Exec(ctx, updateOrderStatus, arg.ID, arg.Status)
	return err
}

const createOrderFill = `-- name: CreateOrderFill :one
INSERT INTO order_fills (
    id, market_id, outcome, maker_order_id, taker_order_id, maker, taker, price, size, taker_side, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
RETURNING id, market_id, outcome, maker_order_id, taker_order_id, maker, taker, price, size, taker_side, created_at
`

type CreateOrderFillParams struct {
	ID           uuid.UUID       `json:"id"`
	MarketID     uuid.UUID       `json:"market_id"`
	Outcome      Outcome         `json:"outcome"`
	MakerOrderID uuid.UUID       `json:"maker_order_id"`
	TakerOrderID uuid.UUID       `json:"taker_order_id"`
	Maker        string          `json:"maker"`
	Taker        string          `json:"taker"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	TakerSide    Side            `json:"taker_side"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (q *Queries) CreateOrderFill(ctx context.Context, arg CreateOrderFillParams) (OrderFill, error) {
	row := q.db.QueryRow(ctx, createOrderFill,
		arg.ID,
		arg.MarketID,
		arg.Outcome,
		arg.MakerOrderID,
		arg.TakerOrderID,
		arg.Maker,
		arg.Taker,
		arg.Price,
		arg.Size,
		arg.TakerSide,
		arg.CreatedAt,
	)
	var i OrderFill
	err := row.Scan(
		&i.ID,
		&i.MarketID,
		&i.Outcome,
		&i.MakerOrderID,
		&i.TakerOrderID,
		&i.Maker,
		&i.Taker,
		&i.Price,
		&i.Size,
		&i.TakerSide,
		&i.CreatedAt,
	)
	return i, err
}

const listFillsByMarket = `-- name: ListFillsByMarket :many
SELECT id, market_id, outcome, maker_order_id, taker_order_id, maker, taker, price, size, taker_side, created_at
FROM order_fills
WHERE market_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListFillsByMarketParams struct {
	MarketID uuid.UUID `json:"market_id"`
	Limit    int32     `json:"limit"`
}

func (q *Queries) ListFillsByMarket(ctx context.Context, arg ListFillsByMarketParams) ([]OrderFill, error) {
	rows, err := q.db.Query(ctx, listFillsByMarket, arg.MarketID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderFill{}
	for rows.Next() {
		var i OrderFill
		if err := rows.Scan(
			&i.ID,
			&i.MarketID,
			&i.Outcome,
			&i.MakerOrderID,
			&i.TakerOrderID,
			&i.Maker,
			&i.Taker,
			&i.Price,
			&i.Size,
			&i.TakerSide,
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
