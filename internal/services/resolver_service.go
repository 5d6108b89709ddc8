/**
 * @description
 * The resolver closes markets whose end time has passed and resolves those that carry
 * an automatic resolution source.
 *
 * Key features:
 * - Oracle Markets: Once the latest stored Pyth price was published at or after the end
 *   time, YES when it is greater than or equal to the strike and NO otherwise.
 * - Sports Markets: YES when the configured team won the ESPN event, NO when another
 *   competitor won, INVALID for draws and cancelled or postponed events.
 * - Markets without a source stay closed until their creator resolves them.
 */

package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/espn"
)

// SportsSource looks up the state of an ESPN event.
type SportsSource interface {
	Competition(ctx context.Context, ref espn.EventRef) (*espn.Competition, error)
}

// ResolverService drives the end-of-life of markets.
type ResolverService struct {
	store   db.Querier
	markets *MarketService
	sports  SportsSource
	logger  *slog.Logger
	now     func() time.Time
}

func NewResolverService(store db.Querier, markets *MarketService, sports SportsSource, logger *slog.Logger) *ResolverService {
	return &ResolverService{
		store:   store,
		markets: markets,
		sports:  sports,
		logger:  logger,
		now:     time.Now,
	}
}

// TickResult counts what one pass did.
type TickResult struct {
	Closed   int
	Resolved int
}

// Tick closes and resolves every market past its end time.
func (s *ResolverService) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	markets, err := s.store.ListMarketsPastEnd(ctx, s.now())
	if err != nil {
		return res, err
	}

	for _, m := range markets {
		if m.Status == db.MarketStatusOpen {
			if err := s.markets.CloseMarket(ctx, m.ID); err != nil {
				s.logger.Error("failed to close market", "market_id", m.ID, "error", err)
				continue
			}
			res.Closed++
		}

		outcome, source, ok, err := s.outcomeOf(ctx, m)
		if err != nil {
			s.logger.Warn("market outcome unavailable", "market_id", m.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if _, err := s.markets.resolve(ctx, m, outcome, source); err != nil {
			if errors.Is(err, ErrMarketResolved) {
				continue
			}
			s.logger.Error("failed to resolve market", "market_id", m.ID, "error", err)
			continue
		}
		res.Resolved++
	}
	return res, nil
}

// outcomeOf returns the outcome of m when its source has decided it.
func (s *ResolverService) outcomeOf(ctx context.Context, m db.Market) (db.Outcome, string, bool, error) {
	switch {
	case m.OracleFeedID != nil && m.StrikePrice.Valid:
		// the first price published at or after the end time settles the market
		price, err := s.store.GetFirstPythPriceAfter(ctx, db.GetFirstPythPriceAfterParams{
			FeedID:      *m.OracleFeedID,
			PublishTime: m.EndTime,
		})
		if errors.Is(notFound(err), ErrNotFound) {
			return "", "", false, nil
		}
		if err != nil {
			return "", "", false, err
		}
		if price.Price.GreaterThanOrEqual(m.StrikePrice.Decimal) {
			return db.OutcomeYes, ResolutionOracle, true, nil
		}
		return db.OutcomeNo, ResolutionOracle, true, nil

	case m.EspnEventID != nil && m.EspnTeam != nil && s.sports != nil:
		ref, err := espn.ParseEventRef(*m.EspnEventID)
		if err != nil {
			return "", "", false, err
		}
		comp, err := s.sports.Competition(ctx, ref)
		if err != nil {
			return "", "", false, err
		}
		result, winner := comp.Outcome()
		switch result {
		case espn.ResultWinner:
			if winner.Matches(*m.EspnTeam) {
				return db.OutcomeYes, ResolutionSports, true, nil
			}
			return db.OutcomeNo, ResolutionSports, true, nil
		case espn.ResultDraw, espn.ResultCancelled:
			return db.OutcomeInvalid, ResolutionSports, true, nil
		}
	}
	return "", "", false, nil
}

// Run ticks every interval until ctx is cancelled.
func (s *ResolverService) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("starting market resolver", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping market resolver")
			return
		case <-ticker.C:
			res, err := s.Tick(ctx)
			if err != nil {
				s.logger.Error("resolver tick failed", "error", err)
				continue
			}
			if res.Closed > 0 || res.Resolved > 0 {
				s.logger.Info("resolver tick", "closed", res.Closed, "resolved", res.Resolved)
			}
		}
	}
}
