/**
 * @description
 * This service is responsible for aggregating executed trades into OHLCV (Open, High, Low, Close, Volume) bars.
 * It maintains in-memory state for each market and time period and stores completed bars in the database.
 *
 * Key features:
 * - OHLCV Aggregation: Converts fills and AMM swaps into OHLCV bars.
 * - Time-based Bucketing: Groups trades into time buckets (1m, 5m, 15m, 1h, 1d).
 * - In-memory State: Maintains the current bar for each market/resolution combination.
 * - Database Storage: Completed bars are upserted into market_price_history.
 *
 * @dependencies
 * - github.com/predikt/backend/internal/db: For database access.
 * - log/slog: For structured logging.
 */

package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	db "github.com/predikt/backend/internal/db"
	"github.com/shopspring/decimal"
)

// Resolutions are the bar sizes kept for every market.
var Resolutions = []string{"1", "5", "15", "60", "D"}

// OHLCVAggregator aggregates trades into OHLCV bars.
type OHLCVAggregator struct {
	store  db.Querier
	logger *slog.Logger

	// In-memory state: market_id -> resolution -> current bar
	bars map[string]map[string]*CurrentBar
	mu   sync.Mutex

	totalUpdates   int64
	totalBarsSaved int64
}

// CurrentBar represents a bar that is currently being aggregated.
type CurrentBar struct {
	MarketID   string
	Resolution string
	StartTime  time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	Count      int64 // Number of trades in this bar
}

// NewOHLCVAggregator creates a new OHLCV aggregator.
func NewOHLCVAggregator(logger *slog.Logger, store db.Querier) *OHLCVAggregator {
	return &OHLCVAggregator{
		store:  store,
		logger: logger,
		bars:   make(map[string]map[string]*CurrentBar),
	}
}

// Run flushes completed bars every 15 seconds and logs status every 5 minutes
// until ctx is cancelled, then flushes everything still in memory.
func (a *OHLCVAggregator) Run(ctx context.Context) {
	flush := time.NewTicker(15 * time.Second)
	status := time.NewTicker(5 * time.Minute)
	defer flush.Stop()
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.FlushAll(flushCtx); err != nil {
				a.logger.Error("final OHLCV flush failed", "error", err)
			}
			cancel()
			return
		case now := <-flush.C:
			a.flushCompletedBars(ctx, now)
		case <-status.C:
			a.logStatus()
		}
	}
}

// UpdatePrice records one trade at price with the given volume for every resolution.
func (a *OHLCVAggregator) UpdatePrice(ctx context.Context, marketID string, price, volume decimal.Decimal, timestamp time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalUpdates++
	for _, resolution := range Resolutions {
		if err := a.updateBarForResolution(ctx, marketID, resolution, price, volume, timestamp); err != nil {
			a.logger.Error("failed to update bar", "market_id", marketID, "resolution", resolution, "error", err)
			return err
		}
	}
	return nil
}

// updateBarForResolution updates the bar for a specific market and resolution. Caller holds a.mu.
func (a *OHLCVAggregator) updateBarForResolution(ctx context.Context, marketID, resolution string, price, volume decimal.Decimal, timestamp time.Time) error {
	if a.bars[marketID] == nil {
		a.bars[marketID] = make(map[string]*CurrentBar)
	}

	barStartTime := getBarStartTime(timestamp, resolution)

	bar, exists := a.bars[marketID][resolution]
	if exists && barStartTime.Before(bar.StartTime) {
		// late trade for a bar that was already rolled over
		return nil
	}
	if !exists || bar.StartTime.Before(barStartTime) {
		if exists {
			if err := a.saveBar(ctx, bar); err != nil {
				return err
			}
		}
		bar = &CurrentBar{
			MarketID:   marketID,
			Resolution: resolution,
			StartTime:  barStartTime,
			Open:       price,
			High:       price,
			Low:        price,
			Close:      price,
			Volume:     decimal.Zero,
		}
		a.bars[marketID][resolution] = bar
		a.logger.Debug("created new OHLCV bar", "market_id", marketID, "resolution", resolution, "start_time", barStartTime)
	}

	bar.Close = price
	if price.GreaterThan(bar.High) {
		bar.High = price
	}
	if price.LessThan(bar.Low) {
		bar.Low = price
	}
	bar.Volume = bar.Volume.Add(volume)
	bar.Count++
	return nil
}

// getBarStartTime calculates the start time of the bar for a given timestamp and resolution.
func getBarStartTime(timestamp time.Time, resolution string) time.Time {
	timestamp = timestamp.UTC()
	switch resolution {
	case "1": // 1 minute
		return timestamp.Truncate(time.Minute)
	case "5": // 5 minutes
		return timestamp.Truncate(5 * time.Minute)
	case "15": // 15 minutes
		return timestamp.Truncate(15 * time.Minute)
	case "60": // 1 hour
		return timestamp.Truncate(time.Hour)
	case "D": // 1 day
		return time.Date(timestamp.Year(), timestamp.Month(), timestamp.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return timestamp.Truncate(time.Hour)
	}
}

// getBarEndTime calculates when a bar's time period ends based on its start time and resolution.
func getBarEndTime(startTime time.Time, resolution string) time.Time {
	switch resolution {
	case "1":
		return startTime.Add(time.Minute)
	case "5":
		return startTime.Add(5 * time.Minute)
	case "15":
		return startTime.Add(15 * time.Minute)
	case "60":
		return startTime.Add(time.Hour)
	case "D":
		return startTime.Add(24 * time.Hour)
	default:
		return startTime.Add(time.Hour)
	}
}

// saveBar saves a bar to the database. Saving the same bar twice merges it with the stored row.
func (a *OHLCVAggregator) saveBar(ctx context.Context, bar *CurrentBar) error {
	utcTime := bar.StartTime.UTC()

	var timeVal pgtype.Timestamptz
	if err := timeVal.Scan(utcTime); err != nil {
		return err
	}

	arg := db.InsertMarketPriceHistoryParams{
		Time:       timeVal,
		MarketID:   bar.MarketID,
		Resolution: bar.Resolution,
		Open:       bar.Open,
		High:       bar.High,
		Low:        bar.Low,
		Close:      bar.Close,
		Volume:     bar.Volume,
	}
	if err := a.store.InsertMarketPriceHistory(ctx, arg); err != nil {
		a.logger.Error("failed to insert market price history",
			"error", err,
			"market_id", bar.MarketID,
			"resolution", bar.Resolution,
			"start_time", utcTime.Format(time.RFC3339))
		return fmt.Errorf("database insert failed: %w", err)
	}

	a.totalBarsSaved++
	a.logger.Debug("OHLCV bar saved",
		"market_id", bar.MarketID,
		"resolution", bar.Resolution,
		"start_time", utcTime.Format(time.RFC3339),
		"close", bar.Close,
		"trades", bar.Count)
	return nil
}

// FlushAll saves every bar currently in memory. Bars stay in memory so later
// trades in the same bucket keep aggregating.
func (a *OHLCVAggregator) FlushAll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for marketID, resolutions := range a.bars {
		for resolution, bar := range resolutions {
			if err := a.saveBar(ctx, bar); err != nil {
				a.logger.Error("failed to flush bar", "market_id", marketID, "resolution", resolution, "error", err)
				return err
			}
		}
	}
	return nil
}

// flushCompletedBars saves and forgets bars whose time period has ended.
func (a *OHLCVAggregator) flushCompletedBars(ctx context.Context, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	saved := 0
	for marketID, resolutions := range a.bars {
		for resolution, bar := range resolutions {
			if now.Before(getBarEndTime(bar.StartTime, bar.Resolution)) {
				continue
			}
			if err := a.saveBar(ctx, bar); err != nil {
				a.logger.Error("failed to flush completed bar", "error", err, "market_id", marketID, "resolution", resolution)
				continue
			}
			delete(resolutions, resolution)
			saved++
		}
		if len(resolutions) == 0 {
			delete(a.bars, marketID)
		}
	}
	if saved > 0 {
		a.logger.Info("flushed completed bars", "count", saved)
	}
}

// logStatus logs the current state of all bars in memory.
func (a *OHLCVAggregator) logStatus() {
	a.mu.Lock()
	defer a.mu.Unlock()

	barCounts := make(map[string]int)
	for _, resolutions := range a.bars {
		for resolution := range resolutions {
			barCounts[resolution]++
		}
	}
	a.logger.Info("OHLCV aggregator status",
		"updates", a.totalUpdates,
		"bars_saved", a.totalBarsSaved,
		"markets", len(a.bars),
		"by_resolution", barCounts)
}
