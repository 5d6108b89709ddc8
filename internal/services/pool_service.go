/**
 * @description
 * This file contains the business logic for AMM pool markets. Swaps execute on-chain
 * from the user's wallet; the backend quotes them, records them from the pool's
 * events once mined and keeps a mirror of the pool reserves for pricing,
 * positions and rewards.
 *
 * Key features:
 * - Info: Reads live reserves from the pool contract when a chain is configured,
 *   falling back to the mirror.
 * - Chain Verified: Swaps and funding changes are read from transaction receipts;
 *   the sender must be the caller or the caller's proxy wallet.
 * - Idempotent Recording: Swaps and funding changes are keyed by transaction hash.
 * - Liquidity: LP shares are tracked per provider and earn liquidity reward points.
 */

package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/predikt/backend/internal/amm"
	"github.com/predikt/backend/internal/chain"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/metrics"
	"github.com/shopspring/decimal"
)

const (
	PoolSourceChain  = "chain"
	PoolSourceMirror = "mirror"
)

// PoolInfo is the current state of a pool and its marginal prices.
type PoolInfo struct {
	Address     string          `json:"address"`
	MarketID    uuid.UUID       `json:"market_id"`
	YesReserve  decimal.Decimal `json:"yes_reserve"`
	NoReserve   decimal.Decimal `json:"no_reserve"`
	TotalShares decimal.Decimal `json:"total_shares"`
	FeeBps      int64           `json:"fee_bps"`
	YesPrice    decimal.Decimal `json:"yes_price"`
	NoPrice     decimal.Decimal `json:"no_price"`
	Source      string          `json:"source"`
}

// QuoteInput describes a prospective swap. Amount is collateral for a BUY and
// outcome tokens for a SELL.
type QuoteInput struct {
	Outcome     db.Outcome      `json:"outcome"`
	Side        db.Side         `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	SlippageBps int64           `json:"slippage_bps"`
}

// SwapQuote is a quote plus the minimum output to pass to the pool contract.
type SwapQuote struct {
	amm.Quote
	MinOut decimal.Decimal `json:"min_out"`
}

// RecordSwapInput names a mined swap transaction. MinOut, when set, is
// checked against the output the pool reported.
type RecordSwapInput struct {
	TxHash string          `json:"tx_hash"`
	MinOut decimal.Decimal `json:"min_out"`
}

// LiquidityInput names a mined addFunding or removeFunding transaction.
type LiquidityInput struct {
	TxHash string `json:"tx_hash"`
}

// PoolService provides methods for AMM pool business logic.
type PoolService struct {
	store      db.Store
	chain      chain.Client
	publisher  Publisher
	aggregator *OHLCVAggregator
	logger     *slog.Logger
	now        func() time.Time

	// mirror updates are serialised per process; the mirror is read and
	// written inside the same transaction.
	mu sync.Mutex
}

func NewPoolService(store db.Store, chainClient chain.Client, publisher Publisher, aggregator *OHLCVAggregator, logger *slog.Logger) *PoolService {
	if chainClient == nil {
		chainClient = chain.Disabled{}
	}
	return &PoolService{
		store:      store,
		chain:      chainClient,
		publisher:  publisher,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
	}
}

func normalizePool(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", invalid("address", "not a valid pool address")
	}
	return common.HexToAddress(address).Hex(), nil
}

func ammOutcome(o db.Outcome) (amm.Outcome, error) {
	switch o {
	case db.OutcomeYes:
		return amm.Yes, nil
	case db.OutcomeNo:
		return amm.No, nil
	}
	return "", invalid("outcome", "must be YES or NO")
}

func ammError(err error) error {
	switch {
	case errors.Is(err, amm.ErrInvalidAmount):
		return invalid("amount", err.Error())
	case errors.Is(err, amm.ErrInvalidShares):
		return invalid("shares", err.Error())
	case errors.Is(err, amm.ErrInvalidOutcome):
		return invalid("outcome", err.Error())
	case errors.Is(err, amm.ErrInvalidFee):
		return invalid("fee_bps", err.Error())
	}
	return err
}

func (s *PoolService) mirror(ctx context.Context, q db.Querier, address string) (db.AmmPool, error) {
	p, err := q.GetAmmPool(ctx, address)
	return p, notFound(err)
}

/**
 * @description
 * Info returns the pool state. Chain reserves are preferred; any chain error
 * falls back to the mirrored reserves.
 */
func (s *PoolService) Info(ctx context.Context, address string) (PoolInfo, error) {
	address, err := normalizePool(address)
	if err != nil {
		return PoolInfo{}, err
	}
	p, err := s.mirror(ctx, s.store, address)
	if err != nil {
		return PoolInfo{}, err
	}

	info := PoolInfo{
		Address:     p.Address,
		MarketID:    p.MarketID,
		YesReserve:  p.YesReserve,
		NoReserve:   p.NoReserve,
		TotalShares: p.TotalShares,
		FeeBps:      p.FeeBps,
		Source:      PoolSourceMirror,
	}

	yes, no, err := s.chain.GetReserves(ctx, common.HexToAddress(address))
	switch {
	case err == nil:
		info.YesReserve = decimal.NewFromBigInt(yes, -amm.Precision)
		info.NoReserve = decimal.NewFromBigInt(no, -amm.Precision)
		info.Source = PoolSourceChain
	case !errors.Is(err, chain.ErrChainDisabled):
		s.logger.Warn("falling back to mirrored reserves", "pool", address, "error", err)
	}

	pool := amm.Pool{YesReserve: info.YesReserve, NoReserve: info.NoReserve, TotalShares: info.TotalShares, FeeBps: info.FeeBps}
	info.YesPrice, info.NoPrice = pool.Prices()
	return info, nil
}

func quote(pool amm.Pool, outcome amm.Outcome, side db.Side, amount decimal.Decimal) (amm.Quote, decimal.Decimal, error) {
	switch side {
	case db.SideBuy:
		q, err := pool.QuoteBuy(outcome, amount)
		return q, q.TokenAmount, err
	case db.SideSell:
		q, err := pool.QuoteSell(outcome, amount)
		return q, q.CollateralAmount, err
	}
	return amm.Quote{}, decimal.Zero, invalid("side", "must be BUY or SELL")
}

// Quote prices a swap against the current reserves.
func (s *PoolService) Quote(ctx context.Context, address string, in QuoteInput) (SwapQuote, error) {
	info, err := s.Info(ctx, address)
	if err != nil {
		return SwapQuote{}, err
	}
	outcome, err := ammOutcome(in.Outcome)
	if err != nil {
		return SwapQuote{}, err
	}
	if in.SlippageBps < 0 || in.SlippageBps >= 10000 {
		return SwapQuote{}, invalid("slippage_bps", "must be in [0, 10000)")
	}
	pool := amm.Pool{YesReserve: info.YesReserve, NoReserve: info.NoReserve, TotalShares: info.TotalShares, FeeBps: info.FeeBps}
	q, out, err := quote(pool, outcome, in.Side, in.Amount)
	if err != nil {
		return SwapQuote{}, ammError(err)
	}
	return SwapQuote{Quote: q, MinOut: amm.ApplySlippage(out, in.SlippageBps)}, nil
}

func (s *PoolService) tradableMarket(ctx context.Context, q db.Querier, id uuid.UUID) (db.Market, error) {
	market, err := q.GetMarket(ctx, id)
	if err != nil {
		return db.Market{}, notFound(err)
	}
	if market.MarketType != db.MarketTypePool {
		return db.Market{}, ErrWrongMarketType
	}
	if market.Status != db.MarketStatusOpen || !market.EndTime.After(s.now()) {
		return db.Market{}, ErrMarketNotOpen
	}
	return market, nil
}

func parseTxHash(raw string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(raw))
	if len(h) != 66 || !strings.HasPrefix(h, "0x") {
		return "", invalid("tx_hash", "must be a 32-byte hex hash")
	}
	if _, err := hex.DecodeString(h[2:]); err != nil {
		return "", invalid("tx_hash", "must be a 32-byte hex hash")
	}
	return h, nil
}

// controls reports whether account is user's wallet or user's proxy wallet.
func controls(ctx context.Context, c chain.Client, user string, account common.Address) error {
	owner := common.HexToAddress(user)
	if account == owner {
		return nil
	}
	proxy, err := c.ProxyFor(ctx, owner)
	if err != nil {
		return err
	}
	if proxy != (common.Address{}) && proxy == account {
		return nil
	}
	return ErrForbidden
}

func baseUnits(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -amm.Precision)
}

func eventOutcome(index int64) (db.Outcome, amm.Outcome, error) {
	switch index {
	case 0:
		return db.OutcomeYes, amm.Yes, nil
	case 1:
		return db.OutcomeNo, amm.No, nil
	}
	return "", "", invalid("tx_hash", "swap is for an unknown outcome index")
}

/**
 * @description
 * RecordSwap reads the pool's FPMMBuy or FPMMSell event from the mined
 * transaction and applies it to the mirror, the trader's position, the market
 * prices and the rewards ledger in one transaction. The buyer or seller must
 * be the trader or the trader's proxy wallet.
 *
 * @returns ErrDuplicateSwap when the transaction hash was already recorded.
 */
func (s *PoolService) RecordSwap(ctx context.Context, trader, address string, in RecordSwapInput) (db.AmmSwap, error) {
	address, err := normalizePool(address)
	if err != nil {
		return db.AmmSwap{}, err
	}
	txHash, err := parseTxHash(in.TxHash)
	if err != nil {
		return db.AmmSwap{}, err
	}

	ev, err := s.chain.PoolEvent(ctx, common.HexToHash(txHash), common.HexToAddress(address))
	if err != nil {
		return db.AmmSwap{}, err
	}
	var side db.Side
	switch ev.Kind {
	case chain.PoolBuy:
		side = db.SideBuy
	case chain.PoolSell:
		side = db.SideSell
	default:
		return db.AmmSwap{}, invalid("tx_hash", "transaction is not a swap")
	}
	outcome, ammOut, err := eventOutcome(ev.Outcome)
	if err != nil {
		return db.AmmSwap{}, err
	}
	if err := controls(ctx, s.chain, trader, ev.Account); err != nil {
		return db.AmmSwap{}, err
	}

	collateral, tokens, fee := baseUnits(ev.Collateral), baseUnits(ev.Tokens), baseUnits(ev.Fee)
	if !tokens.IsPositive() || !collateral.IsPositive() {
		return db.AmmSwap{}, invalid("tx_hash", "swap moved no tokens")
	}
	out, gross := tokens, collateral
	if side == db.SideSell {
		out, gross = collateral, collateral.Add(fee)
	}
	if in.MinOut.IsPositive() {
		if err := amm.CheckSlippage(out, in.MinOut); err != nil {
			return db.AmmSwap{}, err
		}
	}
	avgPrice := gross.DivRound(tokens, amm.Precision)

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		swap   db.AmmSwap
		market db.Market
		q      amm.Quote
	)
	err = s.store.ExecTx(ctx, func(tx db.Querier) error {
		p, err := s.mirror(ctx, tx, address)
		if err != nil {
			return err
		}
		if market, err = s.tradableMarket(ctx, tx, p.MarketID); err != nil {
			return err
		}

		// the mirror replays the swap's input to follow the pool's reserves
		input := collateral
		if side == db.SideSell {
			input = tokens
		}
		if q, _, err = quote(poolOf(p), ammOut, side, input); err != nil {
			return ammError(err)
		}
		if side == db.SideSell {
			pos, err := loadPosition(ctx, tx, market.ID, trader, outcome)
			if err != nil {
				return err
			}
			if pos.Size.LessThan(tokens) {
				return ErrInsufficientPosition
			}
		}

		swap = db.AmmSwap{
			ID:               uuid.New(),
			PoolAddress:      address,
			MarketID:         market.ID,
			Trader:           trader,
			Outcome:          outcome,
			Side:             side,
			CollateralAmount: collateral,
			TokenAmount:      tokens,
			Fee:              fee,
			TxHash:           txHash,
			CreatedAt:        s.now().UTC(),
		}
		rows, err := tx.CreateAmmSwap(ctx, db.CreateAmmSwapParams{
			ID:               swap.ID,
			PoolAddress:      swap.PoolAddress,
			MarketID:         swap.MarketID,
			Trader:           swap.Trader,
			Outcome:          swap.Outcome,
			Side:             swap.Side,
			CollateralAmount: swap.CollateralAmount,
			TokenAmount:      swap.TokenAmount,
			Fee:              swap.Fee,
			TxHash:           swap.TxHash,
			CreatedAt:        swap.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("create swap: %w", err)
		}
		if rows == 0 {
			return ErrDuplicateSwap
		}

		if _, err := tx.UpsertAmmPool(ctx, db.UpsertAmmPoolParams{
			Address:     address,
			MarketID:    market.ID,
			YesReserve:  q.Next.YesReserve,
			NoReserve:   q.Next.NoReserve,
			TotalShares: q.Next.TotalShares,
			FeeBps:      p.FeeBps,
		}); err != nil {
			return fmt.Errorf("update pool mirror: %w", err)
		}

		if side == db.SideBuy {
			err = applyBuy(ctx, tx, market.ID, trader, outcome, tokens, avgPrice)
		} else {
			err = applySell(ctx, tx, market.ID, trader, outcome, tokens, avgPrice)
		}
		if err != nil {
			return fmt.Errorf("update position: %w", err)
		}

		if err := tx.UpdateMarketPrices(ctx, db.UpdateMarketPricesParams{
			ID:          market.ID,
			YesPrice:    q.NewYesPrice,
			NoPrice:     q.NewNoPrice,
			VolumeDelta: collateral,
		}); err != nil {
			return fmt.Errorf("update market prices: %w", err)
		}
		return awardPoints(ctx, tx, trader, collateral.Mul(TradePointsPerCollateral), RewardReasonSwap, txHash)
	})
	if err != nil {
		return db.AmmSwap{}, err
	}

	metrics.AMMSwaps.WithLabelValues(string(side)).Inc()
	s.logger.Info("swap recorded", "pool", address, "market_id", market.ID, "trader", trader, "tx_hash", txHash)

	now := s.now()
	publish(ctx, s.publisher, s.logger, MarketChannel(market.ID), TradeEvent{
		EventType: "trade",
		Market:    market.ID.String(),
		Outcome:   string(outcome),
		Price:     avgPrice,
		Size:      tokens,
		TakerSide: string(side),
		Source:    "amm",
		Timestamp: millis(now),
	})
	publish(ctx, s.publisher, s.logger, MarketChannel(market.ID), PriceChangeEvent{
		EventType: "price_change",
		Market:    market.ID.String(),
		YesPrice:  q.NewYesPrice,
		NoPrice:   q.NewNoPrice,
		Timestamp: millis(now),
	})
	if s.aggregator != nil {
		if err := s.aggregator.UpdatePrice(ctx, market.ID.String(), q.NewYesPrice, collateral, now); err != nil {
			s.logger.Warn("OHLCV update failed", "market_id", market.ID, "error", err)
		}
	}
	return swap, nil
}

func fundingAmounts(ev chain.PoolEvent) (decimal.Decimal, decimal.Decimal, error) {
	if len(ev.Amounts) != 2 {
		return decimal.Zero, decimal.Zero, invalid("tx_hash", "funding event is not for a binary pool")
	}
	return baseUnits(ev.Amounts[0]), baseUnits(ev.Amounts[1]), nil
}

/**
 * @description
 * UpdateLiquidity reads the pool's FPMMFundingAdded or FPMMFundingRemoved
 * event from the mined transaction and applies it to the mirror and the
 * provider's LP shares. Outcome tokens the pool hands back are credited to the
 * provider's positions at the pool price. Each transaction is applied once.
 */
func (s *PoolService) UpdateLiquidity(ctx context.Context, provider, address string, in LiquidityInput) (amm.LiquidityResult, error) {
	address, err := normalizePool(address)
	if err != nil {
		return amm.LiquidityResult{}, err
	}
	txHash, err := parseTxHash(in.TxHash)
	if err != nil {
		return amm.LiquidityResult{}, err
	}

	ev, err := s.chain.PoolEvent(ctx, common.HexToHash(txHash), common.HexToAddress(address))
	if err != nil {
		return amm.LiquidityResult{}, err
	}
	if ev.Kind != chain.PoolFundingAdded && ev.Kind != chain.PoolFundingRemoved {
		return amm.LiquidityResult{}, invalid("tx_hash", "transaction is not a funding change")
	}
	yesAmount, noAmount, err := fundingAmounts(ev)
	if err != nil {
		return amm.LiquidityResult{}, err
	}
	if err := controls(ctx, s.chain, provider, ev.Account); err != nil {
		return amm.LiquidityResult{}, err
	}
	shares := baseUnits(ev.Shares)
	adding := ev.Kind == chain.PoolFundingAdded

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res    amm.LiquidityResult
		market db.Market
	)
	err = s.store.ExecTx(ctx, func(tx db.Querier) error {
		p, err := s.mirror(ctx, tx, address)
		if err != nil {
			return err
		}
		if market, err = s.tradableMarket(ctx, tx, p.MarketID); err != nil {
			return err
		}
		claimed, err := tx.ClaimTransaction(ctx, db.ClaimTransactionParams{TxHash: txHash, Kind: "liquidity"})
		if err != nil {
			return fmt.Errorf("claim transaction: %w", err)
		}
		if claimed == 0 {
			return ErrTxRecorded
		}

		pool := poolOf(p)
		yesPrice, noPrice := pool.Prices()

		delta := decimal.Zero
		if adding {
			if res, err = pool.Funded(shares, yesAmount, noAmount); err != nil {
				return ammError(err)
			}
			delta = res.Shares
			yesPrice, noPrice = res.Next.Prices()
		} else {
			lp, err := tx.GetLpPosition(ctx, db.GetLpPositionParams{PoolAddress: address, Provider: provider})
			if err := notFound(err); err != nil && err != ErrNotFound {
				return err
			}
			if lp.Shares.LessThan(shares) {
				return invalid("shares", "exceeds the provider's shares")
			}
			if res, err = pool.Defunded(shares, yesAmount, noAmount); err != nil {
				return ammError(err)
			}
			delta = res.Shares.Neg()
		}

		if _, err := tx.UpsertAmmPool(ctx, db.UpsertAmmPoolParams{
			Address:     address,
			MarketID:    market.ID,
			YesReserve:  res.Next.YesReserve,
			NoReserve:   res.Next.NoReserve,
			TotalShares: res.Next.TotalShares,
			FeeBps:      p.FeeBps,
		}); err != nil {
			return fmt.Errorf("update pool mirror: %w", err)
		}
		if _, err := tx.AddLpShares(ctx, db.AddLpSharesParams{PoolAddress: address, Provider: provider, Delta: delta}); err != nil {
			return fmt.Errorf("update lp shares: %w", err)
		}

		if res.YesAmount.IsPositive() {
			if err := applyBuy(ctx, tx, market.ID, provider, db.OutcomeYes, res.YesAmount, yesPrice); err != nil {
				return err
			}
		}
		if res.NoAmount.IsPositive() {
			if err := applyBuy(ctx, tx, market.ID, provider, db.OutcomeNo, res.NoAmount, noPrice); err != nil {
				return err
			}
		}

		if adding {
			nextYes, nextNo := res.Next.Prices()
			if err := tx.UpdateMarketPrices(ctx, db.UpdateMarketPricesParams{
				ID:          market.ID,
				YesPrice:    nextYes,
				NoPrice:     nextNo,
				VolumeDelta: decimal.Zero,
			}); err != nil {
				return err
			}
			return awardPoints(ctx, tx, provider, res.Collateral.Mul(LiquidityPointsPerCollateral), RewardReasonLiquidity, txHash)
		}
		return nil
	})
	if err != nil {
		return amm.LiquidityResult{}, err
	}

	s.logger.Info("liquidity updated", "pool", address, "provider", provider, "kind", ev.Kind, "shares", res.Shares, "tx_hash", txHash)
	return res, nil
}

func (s *PoolService) ListSwaps(ctx context.Context, address string, limit int32) ([]db.AmmSwap, error) {
	address, err := normalizePool(address)
	if err != nil {
		return nil, err
	}
	return s.store.ListAmmSwapsByPool(ctx, db.ListAmmSwapsByPoolParams{PoolAddress: address, Limit: clampLimit(limit, 50, 500)})
}

func (s *PoolService) LpPosition(ctx context.Context, address, provider string) (db.LpPosition, error) {
	address, err := normalizePool(address)
	if err != nil {
		return db.LpPosition{}, err
	}
	lp, err := s.store.GetLpPosition(ctx, db.GetLpPositionParams{PoolAddress: address, Provider: provider})
	if errors.Is(notFound(err), ErrNotFound) {
		return db.LpPosition{PoolAddress: address, Provider: provider, Shares: decimal.Zero}, nil
	}
	return lp, err
}
