package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RateWindow is the length of one API key quota window.
const RateWindow = time.Hour

type windowKey struct {
	keyID  uuid.UUID
	window int64
}

// Decision is the result of counting one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RateLimiter counts requests per API key in fixed hourly windows.
type RateLimiter struct {
	mu     sync.Mutex
	counts map[windowKey]int
	now    func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{counts: make(map[windowKey]int), now: time.Now}
}

func windowOf(t time.Time) int64 {
	return t.Unix() / int64(RateWindow/time.Second)
}

// Allow counts a request for keyID against limit.
func (l *RateLimiter) Allow(keyID uuid.UUID, limit int) Decision {
	now := l.now()
	w := windowOf(now)
	d := Decision{
		Limit: limit,
		Reset: time.Unix((w+1)*int64(RateWindow/time.Second), 0),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	k := windowKey{keyID: keyID, window: w}
	used := l.counts[k]
	if used >= limit {
		return d
	}
	used++
	l.counts[k] = used
	d.Allowed = true
	d.Remaining = limit - used
	return d
}

// Cleanup drops the counters of finished windows and returns how many were removed.
func (l *RateLimiter) Cleanup() int {
	current := windowOf(l.now())
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k := range l.counts {
		if k.window < current {
			delete(l.counts, k)
			removed++
		}
	}
	return removed
}

// Run cleans up every interval until ctx is cancelled.
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				logger.Debug("rate limit windows cleaned up", "removed", n)
			}
		}
	}
}
