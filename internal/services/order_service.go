/**
 * @description
 * This file contains the business logic for CLOB orders. Orders arrive as signed
 * EIP-712 exchange orders, are verified, matched by the in-memory engine and
 * persisted in a single database transaction together with fills, positions,
 * market prices and reward points.
 *
 * Key features:
 * - Signature Verification: The recovered signer must be the authenticated wallet.
 * - Two-phase Matching: The engine only mutates its books after the transaction commits.
 * - Streaming: Book and trade events are published once the transaction is durable.
 * - Expiry Sweeper: GTD orders are expired in the background.
 */

package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/predikt/backend/internal/clob"
	"github.com/predikt/backend/internal/ctf"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/metrics"
	"github.com/shopspring/decimal"
)

// BookDepth is the number of price levels published with book events.
const BookDepth = 20

// PlaceOrderInput is a signed exchange order plus the engine parameters.
type PlaceOrderInput struct {
	Order     ctf.Order    `json:"order"`
	Signature string       `json:"signature"`
	Outcome   db.Outcome   `json:"outcome"`
	OrderType db.OrderType `json:"order_type"`
}

// PlaceOrderResult is the stored taker order and the fills it produced.
type PlaceOrderResult struct {
	Order db.Order       `json:"order"`
	Fills []db.OrderFill `json:"fills"`
}

// OrderBook is the depth of both outcome books of a market.
type OrderBook struct {
	MarketID uuid.UUID     `json:"market_id"`
	Yes      clob.Snapshot `json:"yes"`
	No       clob.Snapshot `json:"no"`
}

// OrderService provides methods for order-related business logic.
type OrderService struct {
	store      db.Store
	engine     *clob.Engine
	domain     apitypes.TypedDataDomain
	publisher  Publisher
	aggregator *OHLCVAggregator
	logger     *slog.Logger
	now        func() time.Time
}

/**
 * @description
 * NewOrderService creates a new instance of the OrderService.
 *
 * @param store The database store; writes run inside ExecTx.
 * @param engine The matching engine holding the resting orders.
 * @param domain The EIP-712 domain orders must be signed under.
 * @param publisher Receives book and trade events. May be nil.
 * @param aggregator Receives trades for OHLCV bars. May be nil.
 */
func NewOrderService(store db.Store, engine *clob.Engine, domain apitypes.TypedDataDomain, publisher Publisher, aggregator *OHLCVAggregator, logger *slog.Logger) *OrderService {
	return &OrderService{
		store:      store,
		engine:     engine,
		domain:     domain,
		publisher:  publisher,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
	}
}

func sideOf(side int) (db.Side, error) {
	switch side {
	case ctf.SideBuy:
		return db.SideBuy, nil
	case ctf.SideSell:
		return db.SideSell, nil
	}
	return "", invalid("side", "must be 0 (BUY) or 1 (SELL)")
}

func parseExpiration(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return nil, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs < 0 {
		return nil, invalid("expiration", "must be unix seconds")
	}
	t := time.Unix(secs, 0).UTC()
	return &t, nil
}

func parseNonce(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, invalid("nonce", "must be a non-negative integer")
	}
	return n, nil
}

func toEngineOrder(o db.Order) clob.Order {
	out := clob.Order{
		ID:        o.ID,
		Maker:     o.Maker,
		Side:      clob.Side(o.Side),
		Type:      clob.OrderType(o.OrderType),
		Price:     o.Price,
		Size:      o.Size,
		Filled:    o.Filled,
		Status:    clob.Status(o.Status),
		CreatedAt: o.CreatedAt,
	}
	if o.Expiration != nil {
		out.Expiration = *o.Expiration
	}
	return out
}

func engineError(err error) error {
	switch err {
	case clob.ErrInvalidSide:
		return invalid("side", err.Error())
	case clob.ErrInvalidOrderType:
		return invalid("order_type", err.Error())
	case clob.ErrInvalidPrice:
		return invalid("price", err.Error())
	case clob.ErrInvalidSize:
		return invalid("size", err.Error())
	case clob.ErrMissingExpiration, clob.ErrAlreadyExpired:
		return invalid("expiration", err.Error())
	case clob.ErrMarketClosed:
		return ErrMarketNotOpen
	}
	return err
}

/**
 * @description
 * PlaceOrder verifies and executes a signed order for the authenticated wallet.
 *
 * @param caller The checksummed wallet address of the authenticated user.
 * @returns The stored order (with its final status) and the fills it produced.
 */
func (s *OrderService) PlaceOrder(ctx context.Context, caller string, marketID uuid.UUID, in PlaceOrderInput) (PlaceOrderResult, error) {
	now := s.now()

	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return PlaceOrderResult{}, notFound(err)
	}
	if market.MarketType != db.MarketTypeCLOB {
		return PlaceOrderResult{}, ErrWrongMarketType
	}
	if market.Status != db.MarketStatusOpen || !market.EndTime.After(now) {
		return PlaceOrderResult{}, ErrMarketNotOpen
	}

	var tokenID string
	switch in.Outcome {
	case db.OutcomeYes:
		tokenID = market.YesTokenID
	case db.OutcomeNo:
		tokenID = market.NoTokenID
	default:
		return PlaceOrderResult{}, invalid("outcome", "must be YES or NO")
	}
	if tokenID != "" && in.Order.TokenId != tokenID {
		return PlaceOrderResult{}, invalid("tokenId", "does not match the market outcome token")
	}
	if in.OrderType == "" {
		in.OrderType = db.OrderTypeGTC
	}

	signer, err := ctf.NormalizeAddress(in.Order.Signer)
	if err != nil {
		return PlaceOrderResult{}, invalid("signer", err.Error())
	}
	maker, err := ctf.NormalizeAddress(in.Order.Maker)
	if err != nil {
		return PlaceOrderResult{}, invalid("maker", err.Error())
	}
	if !strings.EqualFold(signer, caller) {
		return PlaceOrderResult{}, ErrForbidden
	}
	if in.Order.SignatureType == ctf.SignatureTypeEOA && maker != signer {
		return PlaceOrderResult{}, invalid("maker", "must equal signer for EOA signatures")
	}

	if err := ctf.VerifyTypedData(in.Order.TypedData(s.domain), in.Signature, common.HexToAddress(signer)); err != nil {
		s.logger.Warn("order signature rejected", "signer", signer, "error", err)
		return PlaceOrderResult{}, ErrBadSignature
	}

	side, err := sideOf(in.Order.Side)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	price, size, err := in.Order.PriceAndSize()
	if err != nil {
		return PlaceOrderResult{}, invalid("amounts", err.Error())
	}
	expiration, err := parseExpiration(in.Order.Expiration)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	nonce, err := parseNonce(in.Order.Nonce)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	current, err := s.store.GetUserNonce(ctx, db.GetUserNonceParams{Address: maker, Kind: db.NonceKindExchange})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if nonce < current {
		return PlaceOrderResult{}, ErrInvalidNonce
	}

	if side == db.SideSell {
		// fail fast; the authoritative check runs under the book lock
		if err := requireUnreserved(ctx, s.store, marketID, maker, in.Outcome, decimal.Zero, size); err != nil {
			return PlaceOrderResult{}, err
		}
	}

	taker := clob.Order{
		ID:        uuid.New(),
		Maker:     maker,
		Side:      clob.Side(side),
		Type:      clob.OrderType(in.OrderType),
		Price:     price,
		Size:      size,
		CreatedAt: now,
	}
	if expiration != nil {
		taker.Expiration = *expiration
	}

	key := clob.BookKey{MarketID: marketID, Outcome: string(in.Outcome)}
	var result PlaceOrderResult
	plan, err := s.engine.Execute(key, taker, func(p clob.Plan) error {
		return s.store.ExecTx(ctx, func(q db.Querier) error {
			// asks already resting for this maker hold part of the position
			if side == db.SideSell {
				if err := requireUnreserved(ctx, q, marketID, maker, in.Outcome, p.Reserved, p.Taker.Size); err != nil {
					return err
				}
			}
			var txErr error
			result, txErr = s.persistPlan(ctx, q, p, in, nonce, expiration)
			return txErr
		})
	})
	if err != nil {
		return PlaceOrderResult{}, engineError(err)
	}

	metrics.OrdersPlaced.WithLabelValues(string(in.OrderType), string(side)).Inc()
	metrics.OrderFills.Add(float64(len(plan.Fills)))
	s.logger.Info("order executed",
		"order_id", result.Order.ID,
		"market_id", marketID,
		"maker", maker,
		"status", result.Order.Status,
		"fills", len(plan.Fills))

	s.afterExecution(ctx, plan, in.Outcome, side)
	return result, nil
}

// persistPlan writes everything a plan changes. It runs inside the book lock and a transaction.
func (s *OrderService) persistPlan(ctx context.Context, q db.Querier, p clob.Plan, in PlaceOrderInput, nonce int64, expiration *time.Time) (PlaceOrderResult, error) {
	taker := p.Taker
	outcome := db.Outcome(p.Key.Outcome)
	takerSide := db.Side(taker.Side)

	order, err := q.CreateOrder(ctx, db.CreateOrderParams{
		ID:         taker.ID,
		MarketID:   p.Key.MarketID,
		Maker:      taker.Maker,
		Outcome:    outcome,
		Side:       takerSide,
		Price:      taker.Price,
		Size:       taker.Size,
		Filled:     taker.Filled,
		OrderType:  db.OrderType(taker.Type),
		Status:     db.OrderStatus(taker.Status),
		Salt:       in.Order.Salt,
		Nonce:      nonce,
		Expiration: expiration,
		Signature:  in.Signature,
		CreatedAt:  taker.CreatedAt,
	})
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("create order: %w", err)
	}

	for _, expired := range p.Expired {
		if err := q.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{ID: expired.ID, Status: db.OrderStatusExpired}); err != nil {
			return PlaceOrderResult{}, fmt.Errorf("expire order %s: %w", expired.ID, err)
		}
	}

	fills := make([]db.OrderFill, 0, len(p.Fills))
	volume := decimal.Zero
	for _, f := range p.Fills {
		fill, err := q.CreateOrderFill(ctx, db.CreateOrderFillParams{
			ID:           uuid.New(),
			MarketID:     p.Key.MarketID,
			Outcome:      outcome,
			MakerOrderID: f.MakerOrderID,
			TakerOrderID: taker.ID,
			Maker:        f.Maker,
			Taker:        taker.Maker,
			Price:        f.Price,
			Size:         f.Size,
			TakerSide:    takerSide,
			CreatedAt:    taker.CreatedAt,
		})
		if err != nil {
			return PlaceOrderResult{}, fmt.Errorf("create fill: %w", err)
		}
		fills = append(fills, fill)

		if err := q.UpdateOrderFill(ctx, db.UpdateOrderFillParams{
			ID:     f.MakerOrderID,
			Filled: f.MakerFilled,
			Status: db.OrderStatus(f.MakerStatus()),
		}); err != nil {
			return PlaceOrderResult{}, fmt.Errorf("update maker order: %w", err)
		}

		buyer, seller := taker.Maker, f.Maker
		if takerSide == db.SideSell {
			buyer, seller = f.Maker, taker.Maker
		}
		if err := applyBuy(ctx, q, p.Key.MarketID, buyer, outcome, f.Size, f.Price); err != nil {
			return PlaceOrderResult{}, fmt.Errorf("buyer position: %w", err)
		}
		if err := applySell(ctx, q, p.Key.MarketID, seller, outcome, f.Size, f.Price); err != nil {
			return PlaceOrderResult{}, fmt.Errorf("seller position: %w", err)
		}

		points := f.Notional().Mul(TradePointsPerCollateral)
		for _, owner := range []string{f.Maker, taker.Maker} {
			if err := awardPoints(ctx, q, owner, points, RewardReasonTrade, fill.ID.String()); err != nil {
				return PlaceOrderResult{}, fmt.Errorf("award points: %w", err)
			}
		}
		volume = volume.Add(f.Notional())
	}

	if len(p.Fills) > 0 {
		yes, no := pricesAfterTrade(outcome, p.LastPrice())
		if err := q.UpdateMarketPrices(ctx, db.UpdateMarketPricesParams{
			ID:          p.Key.MarketID,
			YesPrice:    yes,
			NoPrice:     no,
			VolumeDelta: volume,
		}); err != nil {
			return PlaceOrderResult{}, fmt.Errorf("update market prices: %w", err)
		}
	}

	return PlaceOrderResult{Order: order, Fills: fills}, nil
}

// afterExecution streams the committed plan and feeds the OHLCV aggregator.
func (s *OrderService) afterExecution(ctx context.Context, p clob.Plan, outcome db.Outcome, takerSide db.Side) {
	now := s.now()
	for _, f := range p.Fills {
		publish(ctx, s.publisher, s.logger, MarketChannel(p.Key.MarketID), TradeEvent{
			EventType: "trade",
			Market:    p.Key.MarketID.String(),
			Outcome:   string(outcome),
			Price:     f.Price,
			Size:      f.Size,
			TakerSide: string(takerSide),
			Source:    "clob",
			Timestamp: millis(now),
		})
		if s.aggregator != nil {
			yes, _ := pricesAfterTrade(outcome, f.Price)
			if err := s.aggregator.UpdatePrice(ctx, p.Key.MarketID.String(), yes, f.Notional(), now); err != nil {
				s.logger.Warn("OHLCV update failed", "market_id", p.Key.MarketID, "error", err)
			}
		}
	}
	if len(p.Fills) > 0 {
		yes, no := pricesAfterTrade(outcome, p.LastPrice())
		publish(ctx, s.publisher, s.logger, MarketChannel(p.Key.MarketID), PriceChangeEvent{
			EventType: "price_change",
			Market:    p.Key.MarketID.String(),
			YesPrice:  yes,
			NoPrice:   no,
			Timestamp: millis(now),
		})
	}
	publishBook(ctx, s.publisher, s.logger, s.engine.Snapshot(p.Key, BookDepth))
}

// CancelOrder cancels a resting order owned by caller.
func (s *OrderService) CancelOrder(ctx context.Context, caller string, orderID uuid.UUID) (db.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return db.Order{}, notFound(err)
	}
	if !strings.EqualFold(order.Maker, caller) {
		return db.Order{}, ErrForbidden
	}
	if order.Status != db.OrderStatusOpen && order.Status != db.OrderStatusPartial {
		return db.Order{}, ErrOrderNotActive
	}

	_, err = s.engine.Cancel(orderID, func(o clob.Order) error {
		return s.store.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{ID: o.ID, Status: db.OrderStatusCancelled})
	})
	if err == clob.ErrOrderNotFound {
		// Matched or expired between the read and the cancel.
		return db.Order{}, ErrOrderNotActive
	}
	if err != nil {
		return db.Order{}, err
	}

	order.Status = db.OrderStatusCancelled
	s.logger.Info("order cancelled", "order_id", orderID, "maker", order.Maker)
	publishBook(ctx, s.publisher, s.logger, s.engine.Snapshot(clob.BookKey{MarketID: order.MarketID, Outcome: string(order.Outcome)}, BookDepth))
	return order, nil
}

// CancelMarketOrders drops both books of a market and cancels their orders.
func (s *OrderService) CancelMarketOrders(ctx context.Context, marketID uuid.UUID) (int, error) {
	dropped := s.engine.DropMarket(marketID)
	if len(dropped) == 0 {
		return 0, nil
	}
	err := s.store.ExecTx(ctx, func(q db.Querier) error {
		for _, o := range dropped {
			if err := q.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{ID: o.ID, Status: db.OrderStatusCancelled}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to cancel orders of closed market", "market_id", marketID, "orders", len(dropped), "error", err)
		return 0, err
	}
	s.logger.Info("cancelled resting orders", "market_id", marketID, "orders", len(dropped))
	return len(dropped), nil
}

// ExpireOrders removes every resting order whose expiration has passed.
func (s *OrderService) ExpireOrders(ctx context.Context) (int, error) {
	var touched []clob.BookKey
	n, err := s.engine.Expire(s.now(), func(key clob.BookKey, orders []clob.Order) error {
		err := s.store.ExecTx(ctx, func(q db.Querier) error {
			for _, o := range orders {
				if err := q.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{ID: o.ID, Status: db.OrderStatusExpired}); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			touched = append(touched, key)
		}
		return err
	})
	for _, key := range touched {
		publishBook(ctx, s.publisher, s.logger, s.engine.Snapshot(key, BookDepth))
	}
	if n > 0 {
		metrics.OrdersExpired.Add(float64(n))
		s.logger.Info("expired orders", "count", n)
	}
	return n, err
}

// RunExpirySweeper expires orders every interval until ctx is cancelled.
func (s *OrderService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping order expiry sweeper")
			return
		case <-ticker.C:
			if _, err := s.ExpireOrders(ctx); err != nil {
				s.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// LoadRestingOrders rebuilds the books from the database on start-up. Orders
// that expired while the service was down are marked expired instead.
func (s *OrderService) LoadRestingOrders(ctx context.Context) (int, error) {
	orders, err := s.store.ListRestingOrders(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	loaded := 0
	for _, o := range orders {
		if o.Expiration != nil && !o.Expiration.After(now) {
			if err := s.store.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{ID: o.ID, Status: db.OrderStatusExpired}); err != nil {
				return loaded, err
			}
			continue
		}
		key := clob.BookKey{MarketID: o.MarketID, Outcome: string(o.Outcome)}
		if err := s.engine.Load(key, toEngineOrder(o)); err != nil {
			s.logger.Warn("skipping order on load", "order_id", o.ID, "error", err)
			continue
		}
		loaded++
	}
	s.logger.Info("order books loaded", "orders", loaded)
	return loaded, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (db.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	return o, notFound(err)
}

func (s *OrderService) ListMarketOrders(ctx context.Context, marketID uuid.UUID, status string, limit int32) ([]db.Order, error) {
	return s.store.ListOrdersByMarket(ctx, db.ListOrdersByMarketParams{MarketID: marketID, Status: status, Limit: clampLimit(limit, 100, 500)})
}

func (s *OrderService) ListUserOrders(ctx context.Context, maker string, limit int32) ([]db.Order, error) {
	return s.store.ListOrdersByMaker(ctx, db.ListOrdersByMakerParams{Maker: maker, Limit: clampLimit(limit, 100, 500)})
}

func (s *OrderService) ListTrades(ctx context.Context, marketID uuid.UUID, limit int32) ([]db.OrderFill, error) {
	return s.store.ListFillsByMarket(ctx, db.ListFillsByMarketParams{MarketID: marketID, Limit: clampLimit(limit, 100, 500)})
}

// OrderBook returns the aggregated depth of both outcome books.
func (s *OrderService) OrderBook(marketID uuid.UUID, depth int) OrderBook {
	return OrderBook{
		MarketID: marketID,
		Yes:      s.engine.Snapshot(clob.BookKey{MarketID: marketID, Outcome: string(db.OutcomeYes)}, depth),
		No:       s.engine.Snapshot(clob.BookKey{MarketID: marketID, Outcome: string(db.OutcomeNo)}, depth),
	}
}

func (s *OrderService) Positions(ctx context.Context, owner string) ([]db.Position, error) {
	return s.store.ListPositionsByOwner(ctx, owner)
}
