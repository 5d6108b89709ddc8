package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const addRewardPoints = `-- name: AddRewardPoints :exec
INSERT INTO reward_points (owner, points) VALUES ($1, $2)
ON CONFLICT (owner) DO UPDATE SET points = reward_points.points + EXCLUDED.points
`

type AddRewardPointsParams struct {
	Owner  string          `json:"owner"`
	Points decimal.Decimal `json:"points"`
}

func (q *Queries) AddRewardPoints(ctx context.Context, arg AddRewardPointsParams) error {
	_, err := q.db.Exec(ctx, addRewardPoints, arg.Owner, arg.Points)
	return err
}

const createRewardHistory = `-- name: CreateRewardHistory :one
INSERT INTO reward_history (owner, points, reason, ref_id)
VALUES ($1, $2, $3, $4)
RETURNING id, owner, points, reason, ref_id, created_at
`

type CreateRewardHistoryParams struct {
	Owner  string          `json:"owner"`
	Points decimal.Decimal `json:"points"`
	Reason string          `json:"reason"`
	RefID  string          `json:"ref_id"`
}

func (q *Queries) CreateRewardHistory(ctx context.Context, arg CreateRewardHistoryParams) (RewardHistory, error) {
	row := q.db.QueryRow(ctx, createRewardHistory, arg.Owner, arg.Points, arg.Reason, arg.RefID)
	var i RewardHistory
	err := row.Scan(&i.ID, &i.Owner, &i.Points, &i.Reason, &i.RefID, &i.CreatedAt)
	return i, err
}

const getRewardPoints = `-- name: GetRewardPoints :one
SELECT owner, points FROM reward_points WHERE owner = $1
`

func (q *Queries) GetRewardPoints(ctx context.Context, owner string) (RewardPoints, error) {
	row := q.db.QueryRow(ctx, getRewardPoints, owner)
	var i RewardPoints
	err := row.Scan(&i.Owner, &i.Points)
	return i, err
}

const listRewardHistory = `-- name: ListRewardHistory :many
SELECT id, owner, points, reason, ref_id, created_at FROM reward_history
WHERE owner = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`

type ListRewardHistoryParams struct {
	Owner string `json:"owner"`
	Limit int32  `json:"limit"`
}

func (q *Queries) ListRewardHistory(ctx context.Context, arg ListRewardHistoryParams) ([]RewardHistory, error) {
	rows, err := q.db.Query(ctx, listRewardHistory, arg.Owner, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []RewardHistory{}
	for rows.Next() {
		var i RewardHistory
		if err := rows.Scan(&i.ID, &i.Owner, &i.Points, &i.Reason, &i.RefID, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listLeaderboard = `-- name: ListLeaderboard :many
SELECT owner, points FROM reward_points
ORDER BY points DESC, owner
LIMIT $1
`

func (q *Queries) ListLeaderboard(ctx context.Context, limit int32) ([]RewardPoints, error) {
	rows, err := q.db.Query(ctx, listLeaderboard, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []RewardPoints{}
	for rows.Next() {
		var i RewardPoints
		if err := rows.Scan(&i.Owner, &i.Points); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createApiKey = `-- name: CreateApiKey :one
INSERT INTO api_keys (id, user_id, prefix, secret_hash, label, hourly_limit)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, prefix, secret_hash, label, hourly_limit, revoked, created_at
`

type CreateApiKeyParams struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Prefix      string    `json:"prefix"`
	SecretHash  string    `json:"secret_hash"`
	Label       string    `json:"label"`
	HourlyLimit int32     `json:"hourly_limit"`
}

func (q *Queries) CreateApiKey(ctx context.Context, arg CreateApiKeyParams) (ApiKey, error) {
	row := q.db.QueryRow(ctx, createApiKey, arg.ID, arg.UserID, arg.Prefix, arg.SecretHash, arg.Label, arg.HourlyLimit)
	var i ApiKey
	err := row.Scan(&i.ID, &i.UserID, &i.Prefix, &i.SecretHash, &i.Label, &i.HourlyLimit, &i.Revoked, &i.CreatedAt)
	return i, err
}

const getApiKeyByPrefix = `-- name: GetApiKeyByPrefix :one
SELECT id, user_id, prefix, secret_hash, label, hourly_limit, revoked, created_at
FROM api_keys WHERE prefix = $1
`

func (q *Queries) GetApiKeyByPrefix(ctx context.Context, prefix string) (ApiKey, error) {
	row := q.db.QueryRow(ctx, getApiKeyByPrefix, prefix)
	var i ApiKey
	err := row.Scan(&i.ID, &i.UserID, &i.Prefix, &i.SecretHash, &i.Label, &i.HourlyLimit, &i.Revoked, &i.CreatedAt)
	return i, err
}

const listApiKeysByUser = `-- name: ListApiKeysByUser :many
SELECT id, user_id, prefix, secret_hash, label, hourly_limit, revoked, created_at
FROM api_keys WHERE user_id = $1
ORDER BY created_at DESC
`

func (q *Queries) ListApiKeysByUser(ctx context.Context, userID uuid.UUID) ([]ApiKey, error) {
	rows, err := q.db.Query(ctx, listApiKeysByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ApiKey{}
	for rows.Next() {
		var i ApiKey
		if err := rows.Scan(&i.ID, &i.UserID, &i.Prefix, &i.SecretHash, &i.Label, &i.HourlyLimit, &i.Revoked, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const revokeApiKey = `-- name: RevokeApiKey :execrows
UPDATE api_keys SET revoked = true WHERE id = $1 AND user_id = $2 AND NOT revoked
`

type RevokeApiKeyParams struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
}

func (q *Queries) RevokeApiKey(ctx context.Context, arg RevokeApiKeyParams) (int64, error) {
	result, err := q.db.Exec(ctx, revokeApiKey, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const createComment = `-- name: CreateComment :one
INSERT INTO comments (id, market_id, parent_id, author, body)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, market_id, parent_id, author, body, created_at
`

type CreateCommentParams struct {
	ID       uuid.UUID     `json:"id"`
	MarketID uuid.UUID     `json:"market_id"`
	ParentID uuid.NullUUID `json:"parent_id"`
	Author   string        `json:"author"`
	Body     string        `json:"body"`
}

func (q *Queries) CreateComment(ctx context.Context, arg CreateCommentParams) (Comment, error) {
	row := q.db.QueryRow(ctx, createComment, arg.ID, arg.MarketID, arg.ParentID, arg.Author, arg.Body)
	var i Comment
	err := row.Scan(&i.ID, &i.MarketID, &i.ParentID, &i.Author, &i.Body, &i.CreatedAt)
	return i, err
}

const getComment = `-- name: GetComment :one
SELECT id, market_id, parent_id, author, body, created_at FROM comments WHERE id = $1
`

func (q *Queries) GetComment(ctx context.Context, id uuid.UUID) (Comment, error) {
	row := q.db.QueryRow(ctx, getComment, id)
	var i Comment
	err := row.Scan(&i.ID, &i.MarketID, &i.ParentID, &i.Author, &i.Body, &i.CreatedAt)
	return i, err
}

const listCommentsByMarket = `-- name: ListCommentsByMarket :many
SELECT id, market_id, parent_id, author, body, created_at FROM comments
WHERE market_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListCommentsByMarket(ctx context.Context, marketID uuid.UUID) ([]Comment, error) {
	rows, err := q.db.Query(ctx, listCommentsByMarket, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Comment{}
	for rows.Next() {
		var i Comment
		if err := rows.Scan(&i.ID, &i.MarketID, &i.ParentID, &i.Author, &i.Body, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
