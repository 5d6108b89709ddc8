/**
 * @description
 * This service polls Pyth Hermes for the configured price feeds, stores every new
 * price and publishes it on the feed's Redis channel. Stored prices drive the
 * resolution of oracle markets.
 */

package services

import (
	"context"
	"log/slog"
	"time"

	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/metrics"
	"github.com/predikt/backend/internal/pyth"
)

// PriceSource returns the latest prices of a set of feeds.
type PriceSource interface {
	Latest(ctx context.Context, feedIDs []string) ([]pyth.Price, error)
}

// PriceFeedService keeps the stored oracle prices current.
type PriceFeedService struct {
	store     db.Querier
	source    PriceSource
	publisher Publisher
	feeds     []string
	logger    *slog.Logger
}

func NewPriceFeedService(store db.Querier, source PriceSource, publisher Publisher, feedIDs []string, logger *slog.Logger) *PriceFeedService {
	feeds := make([]string, 0, len(feedIDs))
	for _, id := range feedIDs {
		if id = pyth.NormalizeFeedID(id); id != "" {
			feeds = append(feeds, id)
		}
	}
	return &PriceFeedService{
		store:     store,
		source:    source,
		publisher: publisher,
		feeds:     feeds,
		logger:    logger,
	}
}

// Poll fetches the configured feeds once and returns how many new prices were stored.
func (s *PriceFeedService) Poll(ctx context.Context) (int, error) {
	if len(s.feeds) == 0 {
		return 0, nil
	}
	prices, err := s.source.Latest(ctx, s.feeds)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, p := range prices {
		rows, err := s.store.InsertPythPriceUpdate(ctx, db.InsertPythPriceUpdateParams{
			FeedID:      p.FeedID,
			Price:       p.Price,
			Conf:        p.Conf,
			Expo:        p.Expo,
			PublishTime: p.PublishTime.UTC(),
		})
		if err != nil {
			return stored, err
		}
		if rows == 0 {
			// Hermes returned the same publish time as the last poll.
			continue
		}
		stored++
		metrics.PriceUpdates.WithLabelValues(p.FeedID).Inc()
		publish(ctx, s.publisher, s.logger, PriceChannel(p.FeedID), OraclePriceEvent{
			EventType:   "oracle_price",
			FeedID:      p.FeedID,
			Price:       p.Price,
			Conf:        p.Conf,
			PublishTime: p.PublishTime.UTC(),
		})
	}
	s.logger.Debug("price feeds polled", "feeds", len(s.feeds), "stored", stored)
	return stored, nil
}

// Run polls every interval until ctx is cancelled.
func (s *PriceFeedService) Run(ctx context.Context, interval time.Duration) {
	if len(s.feeds) == 0 {
		s.logger.Info("no price feeds configured, poller disabled")
		return
	}
	s.logger.Info("starting price feed poller", "feeds", len(s.feeds), "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("price feed poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("stopping price feed poller")
			return
		case <-ticker.C:
		}
	}
}

// Latest returns the most recent stored price of a feed.
func (s *PriceFeedService) Latest(ctx context.Context, feedID string) (db.PythPriceUpdate, error) {
	p, err := s.store.GetLatestPythPrice(ctx, pyth.NormalizeFeedID(feedID))
	return p, notFound(err)
}
