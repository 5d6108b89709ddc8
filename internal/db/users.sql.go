package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const upsertUser = `-- name: UpsertUser :one
INSERT INTO users (id, wallet_address)
VALUES ($1, $2)
ON CONFLICT (wallet_address) DO UPDATE SET wallet_address = EXCLUDED.wallet_address
RETURNING id, wallet_address, created_at
`

type UpsertUserParams struct {
	ID            uuid.UUID `json:"id"`
	WalletAddress string    `json:"wallet_address"`
}

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	row := q.db.QueryRow(ctx, upsertUser, arg.ID, arg.WalletAddress)
	var i User
	err := row.Scan(&i.ID, &i.WalletAddress, &i.CreatedAt)
	return i, err
}

const getUserByID = `-- name: GetUserByID :one
SELECT id, wallet_address, created_at FROM users WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var i User
	err := row.Scan(&i.ID, &i.WalletAddress, &i.CreatedAt)
	return i, err
}

const getUserByWallet = `-- name: GetUserByWallet :one
SELECT id, wallet_address, created_at FROM users WHERE wallet_address = $1
`

func (q *Queries) GetUserByWallet(ctx context.Context, walletAddress string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByWallet, walletAddress)
	var i User
	err := row.Scan(&i.ID, &i.WalletAddress, &i.CreatedAt)
	return i, err
}

const upsertAuthChallenge = `-- name: UpsertAuthChallenge :exec
INSERT INTO auth_challenges (address, nonce, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (address) DO UPDATE SET nonce = EXCLUDED.nonce, expires_at = EXCLUDED.expires_at
`

type UpsertAuthChallengeParams struct {
	Address   string    `json:"address"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (q *Queries) UpsertAuthChallenge(ctx context.Context, arg UpsertAuthChallengeParams) error {
	_, err := q.db.Exec(ctx, upsertAuthChallenge, arg.Address, arg.Nonce, arg.ExpiresAt)
	return err
}

const getAuthChallenge = `-- name: GetAuthChallenge :one
SELECT address, nonce, expires_at FROM auth_challenges WHERE address = $1
`

func (q *Queries) GetAuthChallenge(ctx context.Context, address string) (AuthChallenge, error) {
	row := q.db.QueryRow(ctx, getAuthChallenge, address)
	var i AuthChallenge
	err := row.Scan(&i.Address, &i.Nonce, &i.ExpiresAt)
	return i, err
}

const consumeAuthChallenge = `-- name: ConsumeAuthChallenge :one
DELETE FROM auth_challenges WHERE address = $1
RETURNING address, nonce, expires_at
`

// ConsumeAuthChallenge deletes and returns the challenge in one statement, so
// two concurrent logins cannot both redeem it.
func (q *Queries) ConsumeAuthChallenge(ctx context.Context, address string) (AuthChallenge, error) {
	row := q.db.QueryRow(ctx, consumeAuthChallenge, address)
	var i AuthChallenge
	err := row.Scan(&i.Address, &i.Nonce, &i.ExpiresAt)
	return i, err
}

const ensureUserNonce = `-- name: EnsureUserNonce :exec
INSERT INTO user_nonces (address, kind, nonce) VALUES ($1, $2, 0)
ON CONFLICT (address, kind) DO NOTHING
`

type EnsureUserNonceParams struct {
	Address string    `json:"address"`
	Kind    NonceKind `json:"kind"`
}

func (q *Queries) EnsureUserNonce(ctx context.Context, arg EnsureUserNonceParams) error {
	_, err := q.db.Exec(ctx, ensureUserNonce, arg.Address, arg.Kind)
	return err
}

const getUserNonce = `-- name: GetUserNonce :one
SELECT COALESCE((SELECT nonce FROM user_nonces WHERE address = $1 AND kind = $2), 0)::BIGINT
`

type GetUserNonceParams struct {
	Address string    `json:"address"`
	Kind    NonceKind `json:"kind"`
}

func (q *Queries) GetUserNonce(ctx context.Context, arg GetUserNonceParams) (int64, error) {
	row := q.db.QueryRow(ctx, getUserNonce, arg.Address, arg.Kind)
	var nonce int64
	err := row.Scan(&nonce)
	return nonce, err
}

const consumeUserNonce = `-- name: ConsumeUserNonce :execrows
UPDATE user_nonces SET nonce = nonce + 1
WHERE address = $1 AND kind = $2 AND nonce = $3
`

type ConsumeUserNonceParams struct {
	Address string    `json:"address"`
	Kind    NonceKind `json:"kind"`
	Nonce   int64     `json:"nonce"`
}

// ConsumeUserNonce advances the nonce only when it still equals the expected
// value. Zero affected rows means another request consumed it first.
func (q *Queries) ConsumeUserNonce(ctx context.Context, arg ConsumeUserNonceParams) (int64, error) {
	result, err := q.db.Exec(ctx, consumeUserNonce, arg.Address, arg.Kind, arg.Nonce)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const createRelayedTransaction = `-- name: CreateRelayedTransaction :execrows
INSERT INTO relayed_transactions (tx_hash, owner, target, nonce)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tx_hash) DO NOTHING
`

type CreateRelayedTransactionParams struct {
	TxHash string `json:"tx_hash"`
	Owner  string `json:"owner"`
	Target string `json:"target"`
	Nonce  int64  `json:"nonce"`
}

func (q *Queries) CreateRelayedTransaction(ctx context.Context, arg CreateRelayedTransactionParams) (int64, error) {
	result, err := q.db.Exec(ctx, createRelayedTransaction, arg.TxHash, arg.Owner, arg.Target, arg.Nonce)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const claimTransaction = `-- name: ClaimTransaction :execrows
INSERT INTO recorded_transactions (tx_hash, kind)
VALUES ($1, $2)
ON CONFLICT (tx_hash) DO NOTHING
`

type ClaimTransactionParams struct {
	TxHash string `json:"tx_hash"`
	Kind   string `json:"kind"`
}

// ClaimTransaction returns 0 when the transaction hash was already recorded.
func (q *Queries) ClaimTransaction(ctx context.Context, arg ClaimTransactionParams) (int64, error) {
	result, err := q.db.Exec(ctx, claimTransaction, arg.TxHash, arg.Kind)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
