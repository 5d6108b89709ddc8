/**
 * @description
 * This service is responsible for publishing real-time market data to Redis so the
 * WebSocket hub can fan it out to subscribed clients.
 *
 * Key features:
 * - Redis Publishing: Every book change, trade, price change, market status change
 *   and oracle price is published to a channel named after the market or feed.
 * - Channel Naming: `market:<market id>` and `prices:<feed id>`; clients subscribe
 *   to the same names through the hub.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: The Redis client library.
 * - log/slog: For structured logging.
 */
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/predikt/backend/internal/clob"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Publisher delivers events to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, event any) error
}

// MarketChannel is the channel carrying book, trade and status events for a market.
func MarketChannel(marketID uuid.UUID) string {
	return "market:" + marketID.String()
}

// PriceChannel is the channel carrying oracle prices for a Pyth feed.
func PriceChannel(feedID string) string {
	return "prices:" + feedID
}

// BookEvent matches the shape of the "book" message clients already consume.
type BookEvent struct {
	EventType string       `json:"event_type"` // "book"
	Market    string       `json:"market"`
	Outcome   string       `json:"outcome"`
	Bids      []clob.Level `json:"bids"`
	Asks      []clob.Level `json:"asks"`
	Timestamp string       `json:"timestamp"` // Unix timestamp in milliseconds
}

type TradeEvent struct {
	EventType string          `json:"event_type"` // "trade"
	Market    string          `json:"market"`
	Outcome   string          `json:"outcome"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	TakerSide string          `json:"taker_side"`
	Source    string          `json:"source"` // "clob" or "amm"
	Timestamp string          `json:"timestamp"`
}

type PriceChangeEvent struct {
	EventType string          `json:"event_type"` // "price_change"
	Market    string          `json:"market"`
	YesPrice  decimal.Decimal `json:"yes_price"`
	NoPrice   decimal.Decimal `json:"no_price"`
	Timestamp string          `json:"timestamp"`
}

type MarketStatusEvent struct {
	EventType string `json:"event_type"` // "market_status"
	Market    string `json:"market"`
	Status    string `json:"status"`
	Outcome   string `json:"outcome,omitempty"`
	Timestamp string `json:"timestamp"`
}

type OraclePriceEvent struct {
	EventType   string          `json:"event_type"` // "oracle_price"
	FeedID      string          `json:"feed_id"`
	Price       decimal.Decimal `json:"price"`
	Conf        decimal.Decimal `json:"conf"`
	PublishTime time.Time       `json:"publish_time"`
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// MarketStreamService publishes market events to Redis.
type MarketStreamService struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ Publisher = (*MarketStreamService)(nil)

// NewMarketStreamService creates a new MarketStreamService.
func NewMarketStreamService(logger *slog.Logger, redisClient *redis.Client) *MarketStreamService {
	return &MarketStreamService{
		redisClient: redisClient,
		logger:      logger,
	}
}

/**
 * @description
 * Publish marshals event to JSON and publishes it on channel.
 *
 * @notes
 * - A Redis outage must not fail a trade that is already committed, so callers
 *   log the returned error and carry on.
 */
func (s *MarketStreamService) Publish(ctx context.Context, channel string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.redisClient.Publish(ctx, channel, payload).Err(); err != nil {
		s.logger.Error("failed to publish data to redis", "error", err, "channel", channel)
		return err
	}
	s.logger.Debug("published event", "channel", channel)
	return nil
}

// publishBook publishes the current depth of one book.
func publishBook(ctx context.Context, pub Publisher, logger *slog.Logger, snap clob.Snapshot) {
	if pub == nil {
		return
	}
	event := BookEvent{
		EventType: "book",
		Market:    snap.MarketID.String(),
		Outcome:   snap.Outcome,
		Bids:      snap.Bids,
		Asks:      snap.Asks,
		Timestamp: millis(time.Now()),
	}
	if err := pub.Publish(ctx, MarketChannel(snap.MarketID), event); err != nil {
		logger.Warn("book publish failed", "market_id", snap.MarketID, "error", err)
	}
}

func publish(ctx context.Context, pub Publisher, logger *slog.Logger, channel string, event any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, channel, event); err != nil {
		logger.Warn("event publish failed", "channel", channel, "error", err)
	}
}
