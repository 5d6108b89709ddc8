package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter()
	now := time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	key, other := uuid.New(), uuid.New()

	for i := 2; i >= 0; i-- {
		d := l.Allow(key, 3)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Remaining)
		assert.Equal(t, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), d.Reset.UTC())
	}
	d := l.Allow(key, 3)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)

	assert.True(t, l.Allow(other, 3).Allowed, "quotas are per key")

	now = now.Add(time.Hour)
	assert.True(t, l.Allow(key, 3).Allowed, "a new window starts fresh")

	assert.Equal(t, 2, l.Cleanup())
	assert.Zero(t, l.Cleanup())
}

func TestRateLimiter_ZeroLimit(t *testing.T) {
	l := NewRateLimiter()
	assert.False(t, l.Allow(uuid.New(), 0).Allowed)
}
