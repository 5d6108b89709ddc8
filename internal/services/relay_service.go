/**
 * @description
 * This file contains the business logic for gasless meta-transactions. Users sign a
 * ProxyWallet `Execute` message; the relayer verifies it, consumes the user's nonce
 * and submits `execute` to the user's proxy wallet, paying gas.
 *
 * Key features:
 * - Nonce Safety: The nonce is consumed with a compare-and-increment update in the same
 *   transaction as the record of the submission. A failed submission rolls it back.
 * - Deadlines: Expired meta-transactions are rejected before touching the chain.
 * - Proxy Management: Balance lookup and proxy deployment through the factory.
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/predikt/backend/internal/chain"
	"github.com/predikt/backend/internal/ctf"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/metrics"
	"github.com/shopspring/decimal"
)

// RelayInput is a signed ProxyWallet meta-transaction.
type RelayInput struct {
	Execute   ctf.Execute `json:"execute"`
	Signature string      `json:"signature"`
}

// RelayResult reports a submitted meta-transaction.
type RelayResult struct {
	TxHash string `json:"tx_hash"`
	Proxy  string `json:"proxy"`
	Nonce  int64  `json:"nonce"`
}

// ProxyBalance is the collateral held by an owner's proxy wallet.
type ProxyBalance struct {
	Owner   string          `json:"owner"`
	Proxy   string          `json:"proxy"`
	Balance decimal.Decimal `json:"balance"`
}

// RelayService provides methods for proxy wallets and relayed transactions.
type RelayService struct {
	store      db.Store
	chain      chain.Client
	chainID    int64
	collateral common.Address
	logger     *slog.Logger
	now        func() time.Time
}

func NewRelayService(store db.Store, chainClient chain.Client, chainID int64, collateral string, logger *slog.Logger) *RelayService {
	if chainClient == nil {
		chainClient = chain.Disabled{}
	}
	return &RelayService{
		store:      store,
		chain:      chainClient,
		chainID:    chainID,
		collateral: common.HexToAddress(collateral),
		logger:     logger,
		now:        time.Now,
	}
}

func ownerAddress(owner string) (common.Address, error) {
	if !common.IsHexAddress(owner) {
		return common.Address{}, invalid("owner", "not a valid address")
	}
	return common.HexToAddress(owner), nil
}

func (s *RelayService) proxyOf(ctx context.Context, owner common.Address) (common.Address, error) {
	proxy, err := s.chain.ProxyFor(ctx, owner)
	if err != nil {
		return common.Address{}, err
	}
	if proxy == (common.Address{}) {
		return common.Address{}, ErrNoProxy
	}
	return proxy, nil
}

// Balance returns the collateral balance of owner's proxy wallet.
func (s *RelayService) Balance(ctx context.Context, owner string) (ProxyBalance, error) {
	addr, err := ownerAddress(owner)
	if err != nil {
		return ProxyBalance{}, err
	}
	proxy, err := s.proxyOf(ctx, addr)
	if err != nil {
		return ProxyBalance{}, err
	}
	raw, err := s.chain.BalanceOf(ctx, s.collateral, proxy)
	if err != nil {
		return ProxyBalance{}, err
	}
	return ProxyBalance{
		Owner:   addr.Hex(),
		Proxy:   proxy.Hex(),
		Balance: decimal.NewFromBigInt(raw, -ctf.CollateralDecimals),
	}, nil
}

// Nonce returns the next meta-transaction nonce of owner.
func (s *RelayService) Nonce(ctx context.Context, owner string) (int64, error) {
	addr, err := ownerAddress(owner)
	if err != nil {
		return 0, err
	}
	return s.store.GetUserNonce(ctx, db.GetUserNonceParams{Address: addr.Hex(), Kind: db.NonceKindProxy})
}

// DeployProxy deploys a proxy wallet for owner unless one exists.
func (s *RelayService) DeployProxy(ctx context.Context, owner string) (string, error) {
	addr, err := ownerAddress(owner)
	if err != nil {
		return "", err
	}
	if proxy, err := s.proxyOf(ctx, addr); err == nil {
		return "", invalid("owner", "proxy wallet already deployed at "+proxy.Hex())
	} else if !errors.Is(err, ErrNoProxy) {
		return "", err
	}

	hash, err := s.chain.DeployProxy(ctx, addr)
	if err != nil {
		metrics.RelayedTransactions.WithLabelValues("failed").Inc()
		return "", err
	}
	metrics.RelayedTransactions.WithLabelValues("submitted").Inc()
	s.logger.Info("proxy deployment submitted", "owner", addr.Hex(), "tx_hash", hash.Hex())
	return hash.Hex(), nil
}

func parseBig(field, s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, invalid(field, "must be a non-negative integer")
	}
	return n, nil
}

// contractSignature re-encodes v as 27/28 for on-chain ecrecover.
func contractSignature(signatureHex string) ([]byte, error) {
	sig, err := ctf.NormalizeSignature(signatureHex)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

/**
 * @description
 * Relay verifies and submits a meta-transaction signed by caller.
 *
 * @returns The relayer transaction hash, or ErrInvalidNonce when the nonce was
 * already used, or ErrDeadlinePassed when the deadline is in the past.
 */
func (s *RelayService) Relay(ctx context.Context, caller string, in RelayInput) (RelayResult, error) {
	owner, err := ownerAddress(in.Execute.Owner)
	if err != nil {
		return RelayResult{}, err
	}
	if !strings.EqualFold(owner.Hex(), caller) {
		return RelayResult{}, ErrForbidden
	}
	if !common.IsHexAddress(in.Execute.To) {
		return RelayResult{}, invalid("to", "not a valid address")
	}

	deadline, err := strconv.ParseInt(strings.TrimSpace(in.Execute.Deadline), 10, 64)
	if err != nil {
		return RelayResult{}, invalid("deadline", "must be unix seconds")
	}
	if deadline <= s.now().Unix() {
		return RelayResult{}, ErrDeadlinePassed
	}
	nonce, err := parseNonce(in.Execute.Nonce)
	if err != nil {
		return RelayResult{}, err
	}
	value, err := parseBig("value", in.Execute.Value)
	if err != nil {
		return RelayResult{}, err
	}
	var data []byte
	if in.Execute.Data != "" {
		if data, err = hexutil.Decode(in.Execute.Data); err != nil {
			return RelayResult{}, invalid("data", "must be 0x-prefixed hex")
		}
	}

	proxy, err := s.proxyOf(ctx, owner)
	if err != nil {
		return RelayResult{}, err
	}
	domain := ctf.Domain(ctf.ProxyWalletDomainName, s.chainID, proxy.Hex())
	if err := ctf.VerifyTypedData(in.Execute.TypedData(domain), in.Signature, owner); err != nil {
		metrics.RelayedTransactions.WithLabelValues("rejected").Inc()
		s.logger.Warn("meta-transaction signature rejected", "owner", owner.Hex(), "error", err)
		return RelayResult{}, ErrBadSignature
	}
	sig, err := contractSignature(in.Signature)
	if err != nil {
		return RelayResult{}, ErrBadSignature
	}

	var hash common.Hash
	err = s.store.ExecTx(ctx, func(q db.Querier) error {
		if err := q.EnsureUserNonce(ctx, db.EnsureUserNonceParams{Address: owner.Hex(), Kind: db.NonceKindProxy}); err != nil {
			return err
		}
		rows, err := q.ConsumeUserNonce(ctx, db.ConsumeUserNonceParams{Address: owner.Hex(), Kind: db.NonceKindProxy, Nonce: nonce})
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidNonce
		}

		hash, err = s.chain.Execute(ctx, proxy, chain.ExecuteCall{
			To:        common.HexToAddress(in.Execute.To),
			Value:     value,
			Data:      data,
			Deadline:  big.NewInt(deadline),
			Signature: sig,
		})
		if err != nil {
			return fmt.Errorf("submit execute: %w", err)
		}

		_, err = q.CreateRelayedTransaction(ctx, db.CreateRelayedTransactionParams{
			TxHash: hash.Hex(),
			Owner:  owner.Hex(),
			Target: common.HexToAddress(in.Execute.To).Hex(),
			Nonce:  nonce,
		})
		return err
	})
	if err != nil {
		status := "failed"
		if errors.Is(err, ErrInvalidNonce) {
			status = "rejected"
		}
		metrics.RelayedTransactions.WithLabelValues(status).Inc()
		return RelayResult{}, err
	}

	metrics.RelayedTransactions.WithLabelValues("submitted").Inc()
	s.logger.Info("meta-transaction relayed", "owner", owner.Hex(), "proxy", proxy.Hex(), "nonce", nonce, "tx_hash", hash.Hex())
	return RelayResult{TxHash: hash.Hex(), Proxy: proxy.Hex(), Nonce: nonce}, nil
}
