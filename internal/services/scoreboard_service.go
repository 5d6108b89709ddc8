package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/predikt/backend/internal/espn"
	"github.com/redis/go-redis/v9"
)

// ScoreboardCacheTTL bounds how stale a cached scoreboard may be.
const ScoreboardCacheTTL = 30 * time.Second

// ScoreboardSource fetches a league scoreboard.
type ScoreboardSource interface {
	Scoreboard(ctx context.Context, sport, league string) (*espn.Scoreboard, error)
}

// ScoreboardService serves ESPN scoreboards through a short Redis cache.
type ScoreboardService struct {
	source      ScoreboardSource
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewScoreboardService creates the service. redisClient may be nil to disable caching.
func NewScoreboardService(source ScoreboardSource, redisClient *redis.Client, logger *slog.Logger) *ScoreboardService {
	return &ScoreboardService{source: source, redisClient: redisClient, logger: logger}
}

func scoreboardKey(sport, league string) string {
	return "espn:scoreboard:" + sport + ":" + league
}

func (s *ScoreboardService) Scoreboard(ctx context.Context, sport, league string) (*espn.Scoreboard, error) {
	if sport == "" || league == "" {
		return nil, invalid("league", "sport and league are required")
	}
	key := scoreboardKey(sport, league)

	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var board espn.Scoreboard
			if jsonErr := json.Unmarshal(cached, &board); jsonErr == nil {
				return &board, nil
			}
		case !errors.Is(err, redis.Nil):
			s.logger.Warn("scoreboard cache read failed", "key", key, "error", err)
		}
	}

	board, err := s.source.Scoreboard(ctx, sport, league)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		if payload, err := json.Marshal(board); err == nil {
			if err := s.redisClient.Set(ctx, key, payload, ScoreboardCacheTTL).Err(); err != nil {
				s.logger.Warn("scoreboard cache write failed", "key", key, "error", err)
			}
		}
	}
	return board, nil
}
