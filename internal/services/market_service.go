/**
 * @description
 * This file contains the business logic for market lifecycle operations: listing,
 * creation, closing at end time and resolution with position settlement.
 *
 * Key features:
 * - Market Types: CLOB markets trade through the order book, POOL markets through an AMM pool.
 * - Automatic Resolution: Markets may carry a Pyth feed and strike, or an ESPN event and team.
 * - Settlement: Resolving a market pays out every open position in the same transaction.
 */

package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/predikt/backend/internal/amm"
	"github.com/predikt/backend/internal/chain"
	"github.com/predikt/backend/internal/clob"
	"github.com/predikt/backend/internal/ctf"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/espn"
	"github.com/predikt/backend/internal/metrics"
	"github.com/predikt/backend/internal/pyth"
	"github.com/shopspring/decimal"
)

// Resolution sources recorded on the MarketsResolved metric.
const (
	ResolutionManual = "manual"
	ResolutionOracle = "oracle"
	ResolutionSports = "espn"
)

var defaultPrice = decimal.RequireFromString("0.5")

// CreateMarketInput carries the fields a creator may set.
type CreateMarketInput struct {
	Question     string              `json:"question"`
	Description  string              `json:"description"`
	Category     string              `json:"category"`
	MarketType   db.MarketType       `json:"market_type"`
	ConditionID  string              `json:"condition_id"`
	YesTokenID   string              `json:"yes_token_id"`
	NoTokenID    string              `json:"no_token_id"`
	PoolAddress  string              `json:"pool_address"`
	OracleFeedID string              `json:"oracle_feed_id"`
	StrikePrice  decimal.NullDecimal `json:"strike_price"`
	EspnEventID  string              `json:"espn_event_id"`
	EspnTeam     string              `json:"espn_team"`
	EndTime      time.Time           `json:"end_time"`
}

// ListMarketsFilter filters and pages ListMarkets.
type ListMarketsFilter struct {
	Category   string
	Status     string
	MarketType string
	Limit      int32
	Offset     int32
}

// Calldata is an unsigned contract call the client submits itself or through the relayer.
type Calldata struct {
	To     string `json:"to"`
	Data   string `json:"data"`
	Op     string `json:"op"`
	Amount string `json:"amount"`
}

// CTFOperation is a mined split or merge applied to the holder's positions.
type CTFOperation struct {
	MarketID uuid.UUID       `json:"market_id"`
	Op       string          `json:"op"`
	Owner    string          `json:"owner"`
	Amount   decimal.Decimal `json:"amount"`
	TxHash   string          `json:"tx_hash"`
}

// MarketContracts are the addresses CTF calldata is built against.
type MarketContracts struct {
	ConditionalTokens string
	Collateral        string
}

// MarketService provides methods for market-related business logic.
type MarketService struct {
	store     db.Store
	orders    *OrderService
	publisher Publisher
	chain     chain.Client
	contracts MarketContracts
	feeBps    int64
	logger    *slog.Logger
	now       func() time.Time

	// normalized ids of the Pyth feeds the poller stores
	feeds map[string]struct{}
}

// NewMarketService creates a new MarketService. orders may be nil when the
// caller does not run a matching engine.
func NewMarketService(store db.Store, orders *OrderService, publisher Publisher, contracts MarketContracts, feeBps int64, logger *slog.Logger) *MarketService {
	return &MarketService{
		store:     store,
		orders:    orders,
		publisher: publisher,
		chain:     chain.Disabled{},
		contracts: contracts,
		feeBps:    feeBps,
		logger:    logger,
		now:       time.Now,
	}
}

// SetChain sets the client split and merge receipts are read with.
func (s *MarketService) SetChain(c chain.Client) {
	if c != nil {
		s.chain = c
	}
}

// SetOracleFeeds limits oracle markets to the feeds the price poller stores.
// With no feeds configured no oracle market can be created.
func (s *MarketService) SetOracleFeeds(ids []string) {
	s.feeds = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.feeds[pyth.NormalizeFeedID(id)] = struct{}{}
	}
}

func (s *MarketService) ListMarkets(ctx context.Context, f ListMarketsFilter) ([]db.Market, error) {
	return s.store.ListMarkets(ctx, db.ListMarketsParams{
		Category:   f.Category,
		Status:     f.Status,
		MarketType: f.MarketType,
		Limit:      clampLimit(f.Limit, 50, 200),
		Offset:     max(f.Offset, 0),
	})
}

func (s *MarketService) GetMarket(ctx context.Context, id uuid.UUID) (db.Market, error) {
	m, err := s.store.GetMarket(ctx, id)
	return m, notFound(err)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (in CreateMarketInput) validate(now time.Time) error {
	if strings.TrimSpace(in.Question) == "" {
		return invalid("question", "must not be empty")
	}
	if !in.EndTime.After(now) {
		return invalid("end_time", "must be in the future")
	}
	switch in.MarketType {
	case db.MarketTypeCLOB:
		if in.PoolAddress != "" {
			return invalid("pool_address", "only POOL markets have a pool")
		}
	case db.MarketTypePool:
		if !common.IsHexAddress(in.PoolAddress) {
			return invalid("pool_address", "POOL markets need a valid pool address")
		}
	default:
		return invalid("market_type", "must be CLOB or POOL")
	}

	oracle := in.OracleFeedID != "" || in.StrikePrice.Valid
	sports := in.EspnEventID != "" || in.EspnTeam != ""
	if oracle && sports {
		return invalid("resolution", "a market resolves from either an oracle or a sports event")
	}
	if oracle && (in.OracleFeedID == "" || !in.StrikePrice.Valid) {
		return invalid("oracle_feed_id", "oracle markets need both a feed id and a strike price")
	}
	if sports {
		if _, err := espn.ParseEventRef(in.EspnEventID); err != nil {
			return invalid("espn_event_id", "must look like sport/league/eventID")
		}
		if strings.TrimSpace(in.EspnTeam) == "" {
			return invalid("espn_team", "sports markets need the team that resolves YES")
		}
	}
	return nil
}

/**
 * @description
 * CreateMarket validates and stores a new market. POOL markets also get an empty
 * pool mirror so swaps and liquidity can be recorded against it.
 */
func (s *MarketService) CreateMarket(ctx context.Context, creator string, in CreateMarketInput) (db.Market, error) {
	if err := in.validate(s.now()); err != nil {
		return db.Market{}, err
	}
	if in.OracleFeedID != "" {
		if _, polled := s.feeds[pyth.NormalizeFeedID(in.OracleFeedID)]; !polled {
			return db.Market{}, invalid("oracle_feed_id", "feed is not in the polled feed list")
		}
	}

	params := db.CreateMarketParams{
		ID:          uuid.New(),
		Question:    strings.TrimSpace(in.Question),
		Description: in.Description,
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		MarketType:  in.MarketType,
		ConditionID: in.ConditionID,
		YesTokenID:  in.YesTokenID,
		NoTokenID:   in.NoTokenID,
		EspnEventID: optional(in.EspnEventID),
		EspnTeam:    optional(in.EspnTeam),
		StrikePrice: in.StrikePrice,
		YesPrice:    defaultPrice,
		NoPrice:     defaultPrice,
		EndTime:     in.EndTime.UTC(),
		CreatedBy:   creator,
	}
	if in.OracleFeedID != "" {
		feed := pyth.NormalizeFeedID(in.OracleFeedID)
		params.OracleFeedID = &feed
	}
	var pool string
	if in.MarketType == db.MarketTypePool {
		pool = common.HexToAddress(in.PoolAddress).Hex()
		params.PoolAddress = &pool
	}

	var market db.Market
	err := s.store.ExecTx(ctx, func(q db.Querier) error {
		var err error
		market, err = q.CreateMarket(ctx, params)
		if err != nil {
			return fmt.Errorf("create market: %w", err)
		}
		if pool == "" {
			return nil
		}
		_, err = q.UpsertAmmPool(ctx, db.UpsertAmmPoolParams{
			Address:     pool,
			MarketID:    market.ID,
			YesReserve:  decimal.Zero,
			NoReserve:   decimal.Zero,
			TotalShares: decimal.Zero,
			FeeBps:      s.feeBps,
		})
		return err
	})
	if err != nil {
		return db.Market{}, err
	}

	s.logger.Info("market created", "market_id", market.ID, "type", market.MarketType, "creator", creator)
	return market, nil
}

// CloseMarket stops trading on a market and cancels its resting orders.
func (s *MarketService) CloseMarket(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SetMarketStatus(ctx, db.SetMarketStatusParams{ID: id, Status: db.MarketStatusClosed}); err != nil {
		return err
	}
	if s.orders != nil {
		if _, err := s.orders.CancelMarketOrders(ctx, id); err != nil {
			return err
		}
	}
	publish(ctx, s.publisher, s.logger, MarketChannel(id), MarketStatusEvent{
		EventType: "market_status",
		Market:    id.String(),
		Status:    string(db.MarketStatusClosed),
		Timestamp: millis(s.now()),
	})
	s.logger.Info("market closed", "market_id", id)
	return nil
}

// ResolveMarket resolves a market on behalf of its creator. Only markets
// without an oracle or sports source can be resolved by hand, and only once
// they are closed or past their end time.
func (s *MarketService) ResolveMarket(ctx context.Context, caller string, id uuid.UUID, outcome db.Outcome) (db.Market, error) {
	market, err := s.store.GetMarket(ctx, id)
	if err != nil {
		return db.Market{}, notFound(err)
	}
	if !strings.EqualFold(market.CreatedBy, caller) {
		return db.Market{}, ErrForbidden
	}
	if market.OracleFeedID != nil || market.EspnEventID != nil {
		return db.Market{}, ErrAutoResolved
	}
	if market.Status == db.MarketStatusOpen && market.EndTime.After(s.now()) {
		return db.Market{}, ErrMarketStillOpen
	}
	return s.resolve(ctx, market, outcome, ResolutionManual)
}

// resolve records the outcome, settles positions and cancels the remaining orders.
func (s *MarketService) resolve(ctx context.Context, market db.Market, outcome db.Outcome, source string) (db.Market, error) {
	switch outcome {
	case db.OutcomeYes, db.OutcomeNo, db.OutcomeInvalid:
	default:
		return db.Market{}, invalid("outcome", "must be YES, NO or INVALID")
	}
	if market.Status == db.MarketStatusResolved {
		return db.Market{}, ErrMarketResolved
	}

	var resolved db.Market
	err := s.store.ExecTx(ctx, func(q db.Querier) error {
		var err error
		resolved, err = q.ResolveMarket(ctx, db.ResolveMarketParams{ID: market.ID, Outcome: outcome, ResolvedAt: s.now().UTC()})
		if errors.Is(notFound(err), ErrNotFound) {
			return ErrMarketResolved
		}
		if err != nil {
			return fmt.Errorf("resolve market: %w", err)
		}
		return settlePositions(ctx, q, market.ID, outcome)
	})
	if err != nil {
		return db.Market{}, err
	}

	if s.orders != nil {
		if _, err := s.orders.CancelMarketOrders(ctx, market.ID); err != nil {
			s.logger.Error("resolved market still has resting orders", "market_id", market.ID, "error", err)
		}
	}
	metrics.MarketsResolved.WithLabelValues(source).Inc()
	publish(ctx, s.publisher, s.logger, MarketChannel(market.ID), MarketStatusEvent{
		EventType: "market_status",
		Market:    market.ID.String(),
		Status:    string(db.MarketStatusResolved),
		Outcome:   string(outcome),
		Timestamp: millis(s.now()),
	})
	s.logger.Info("market resolved", "market_id", market.ID, "outcome", outcome, "source", source)
	return resolved, nil
}

/**
 * @description
 * CTFCalldata builds ConditionalTokens split or merge calldata for a market.
 *
 * @param op "split" or "merge".
 * @param amount Collateral amount in whole units; it is scaled to the token's decimals.
 */
func (s *MarketService) CTFCalldata(ctx context.Context, id uuid.UUID, op string, amount decimal.Decimal) (Calldata, error) {
	market, err := s.store.GetMarket(ctx, id)
	if err != nil {
		return Calldata{}, notFound(err)
	}
	if market.ConditionID == "" {
		return Calldata{}, invalid("condition_id", "market has no condition id")
	}
	if !amount.IsPositive() {
		return Calldata{}, invalid("amount", "must be positive")
	}
	if !common.IsHexAddress(s.contracts.ConditionalTokens) || !common.IsHexAddress(s.contracts.Collateral) {
		return Calldata{}, chain.ErrChainDisabled
	}

	units := amount.Shift(ctf.CollateralDecimals).Truncate(0).BigInt()
	collateral := common.HexToAddress(s.contracts.Collateral)

	var data []byte
	switch op {
	case "split":
		data, err = chain.SplitPositionCalldata(collateral, market.ConditionID, units)
	case "merge":
		data, err = chain.MergePositionsCalldata(collateral, market.ConditionID, units)
	default:
		return Calldata{}, invalid("op", "must be split or merge")
	}
	if err != nil {
		return Calldata{}, invalid("condition_id", err.Error())
	}
	return Calldata{
		To:     common.HexToAddress(s.contracts.ConditionalTokens).Hex(),
		Data:   "0x" + hex.EncodeToString(data),
		Op:     op,
		Amount: units.String(),
	}, nil
}

// withReserved runs fn while owner's asks on both books of the market are
// held still, passing the size resting in each.
func (s *MarketService) withReserved(marketID uuid.UUID, owner string, fn func(yes, no decimal.Decimal) error) error {
	if s.orders == nil {
		return fn(decimal.Zero, decimal.Zero)
	}
	yesKey := clob.BookKey{MarketID: marketID, Outcome: string(db.OutcomeYes)}
	noKey := clob.BookKey{MarketID: marketID, Outcome: string(db.OutcomeNo)}
	err := s.orders.engine.Reserve(yesKey, owner, clob.Sell, func(yes decimal.Decimal) error {
		return s.orders.engine.Reserve(noKey, owner, clob.Sell, func(no decimal.Decimal) error {
			return fn(yes, no)
		})
	})
	if errors.Is(err, clob.ErrMarketClosed) {
		return ErrMarketNotOpen
	}
	return err
}

/**
 * @description
 * RecordCTFOperation applies a mined ConditionalTokens split or merge of the
 * market's condition to the stakeholder's positions. A split credits both
 * outcomes at 0.5; a merge debits both and fails when either leg is committed
 * to resting asks. The stakeholder must be the caller or the caller's proxy.
 *
 * @returns ErrTxRecorded when the transaction was already applied.
 */
func (s *MarketService) RecordCTFOperation(ctx context.Context, caller string, id uuid.UUID, txHash string) (CTFOperation, error) {
	hash, err := parseTxHash(txHash)
	if err != nil {
		return CTFOperation{}, err
	}
	market, err := s.store.GetMarket(ctx, id)
	if err != nil {
		return CTFOperation{}, notFound(err)
	}
	if market.MarketType != db.MarketTypeCLOB {
		return CTFOperation{}, ErrWrongMarketType
	}
	if market.Status != db.MarketStatusOpen || !market.EndTime.After(s.now()) {
		return CTFOperation{}, ErrMarketNotOpen
	}
	if !common.IsHexAddress(s.contracts.ConditionalTokens) {
		return CTFOperation{}, chain.ErrChainDisabled
	}

	ev, err := s.chain.PositionEvent(ctx, common.HexToHash(hash), common.HexToAddress(s.contracts.ConditionalTokens))
	if err != nil {
		return CTFOperation{}, err
	}
	if ev.ConditionID != common.HexToHash(market.ConditionID) {
		return CTFOperation{}, invalid("tx_hash", "transaction is for another condition")
	}
	if err := controls(ctx, s.chain, caller, ev.Stakeholder); err != nil {
		return CTFOperation{}, err
	}
	amount := baseUnits(ev.Amount)
	if !amount.IsPositive() {
		return CTFOperation{}, invalid("tx_hash", "transaction moved no collateral")
	}

	op := CTFOperation{MarketID: market.ID, Op: string(ev.Kind), Owner: ev.Stakeholder.Hex(), Amount: amount, TxHash: hash}
	apply := func(reservedYes, reservedNo decimal.Decimal) error {
		return s.store.ExecTx(ctx, func(q db.Querier) error {
			claimed, err := q.ClaimTransaction(ctx, db.ClaimTransactionParams{TxHash: hash, Kind: "ctf"})
			if err != nil {
				return fmt.Errorf("claim transaction: %w", err)
			}
			if claimed == 0 {
				return ErrTxRecorded
			}
			if ev.Kind == chain.PositionSplit {
				if err := applyBuy(ctx, q, market.ID, op.Owner, db.OutcomeYes, amount, defaultPrice); err != nil {
					return err
				}
				return applyBuy(ctx, q, market.ID, op.Owner, db.OutcomeNo, amount, defaultPrice)
			}
			if err := requireUnreserved(ctx, q, market.ID, op.Owner, db.OutcomeYes, reservedYes, amount); err != nil {
				return err
			}
			if err := requireUnreserved(ctx, q, market.ID, op.Owner, db.OutcomeNo, reservedNo, amount); err != nil {
				return err
			}
			if err := applySell(ctx, q, market.ID, op.Owner, db.OutcomeYes, amount, defaultPrice); err != nil {
				return err
			}
			return applySell(ctx, q, market.ID, op.Owner, db.OutcomeNo, amount, defaultPrice)
		})
	}

	if ev.Kind == chain.PositionMerge {
		err = s.withReserved(market.ID, op.Owner, apply)
	} else {
		err = apply(decimal.Zero, decimal.Zero)
	}
	if err != nil {
		return CTFOperation{}, err
	}

	s.logger.Info("ctf operation recorded", "market_id", market.ID, "op", op.Op, "owner", op.Owner, "amount", amount, "tx_hash", hash)
	return op, nil
}

// PriceHistory returns OHLCV bars for a market in [from, to].
func (s *MarketService) PriceHistory(ctx context.Context, id uuid.UUID, resolution string, from, to time.Time) ([]db.MarketPriceHistory, error) {
	valid := false
	for _, r := range Resolutions {
		if r == resolution {
			valid = true
			break
		}
	}
	if !valid {
		return nil, invalid("resolution", "must be one of 1, 5, 15, 60, D")
	}
	if !from.Before(to) {
		return nil, invalid("from", "must be before to")
	}
	return s.store.GetMarketPriceHistory(ctx, db.GetMarketPriceHistoryParams{
		MarketID:   id.String(),
		Resolution: resolution,
		Time:       pgtype.Timestamptz{Time: from, Valid: true},
		Time_2:     pgtype.Timestamptz{Time: to, Valid: true},
	})
}

// poolOf converts a market's pool mirror to the pricing model.
func poolOf(p db.AmmPool) amm.Pool {
	return amm.Pool{
		YesReserve:  p.YesReserve,
		NoReserve:   p.NoReserve,
		TotalShares: p.TotalShares,
		FeeBps:      p.FeeBps,
	}
}
