package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for the limiter.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(requestsPerMinute int, maxBytesPerDay int64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC)}
	rl := NewRateLimiter(requestsPerMinute, maxBytesPerDay)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_RequestsPerMinute(t *testing.T) {
	rl, clock := newTestLimiter(2, 0)

	require.NoError(t, rl.Allow("a", 0))
	require.NoError(t, rl.Allow("a", 0))

	err := rl.Allow("a", 0)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, limitRequestsPerMinute, rle.Type)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 45*time.Second, rle.RetryAfter)
	assert.Contains(t, err.Error(), "rate limit exceeded")

	require.NoError(t, rl.Allow("b", 0), "clients are tracked separately")

	clock.Advance(45 * time.Second)
	require.NoError(t, rl.Allow("a", 0))
}

func TestRateLimiter_RejectedRequestsAreNotCounted(t *testing.T) {
	rl, clock := newTestLimiter(1, 0)

	require.NoError(t, rl.Allow("a", 0))
	for range 5 {
		require.Error(t, rl.Allow("a", 0))
	}
	clock.Advance(time.Minute)
	require.NoError(t, rl.Allow("a", 0))
}

func TestRateLimiter_DailyUploadQuota(t *testing.T) {
	rl, clock := newTestLimiter(0, 100)

	require.NoError(t, rl.Allow("a", 60))

	err := rl.Allow("a", 50)
	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, limitUploadPerDay, qe.Type)
	assert.Equal(t, int64(100), qe.Limit)
	assert.Equal(t, int64(60), qe.Used)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), qe.Resets)
	assert.Contains(t, err.Error(), "quota exceeded")

	require.NoError(t, rl.Allow("a", 40))
	require.Error(t, rl.Allow("a", 1))

	clock.Advance(14 * time.Hour)
	require.NoError(t, rl.Allow("a", 100))
}

func TestRateLimiter_Unlimited(t *testing.T) {
	rl, _ := newTestLimiter(0, 0)
	for range 100 {
		require.NoError(t, rl.Allow("a", 1<<30))
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	rl, clock := newTestLimiter(10, 1000)
	require.NoError(t, rl.Allow("old", 1))
	clock.Advance(25 * time.Hour)
	require.NoError(t, rl.Allow("new", 1))

	now := clock.Now()
	rl.prune(now.Truncate(time.Minute), now.Truncate(24*time.Hour))
	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "new")
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl, _ := newTestLimiter(50, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Go(func() {
			if err := rl.Allow("a", 0); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			} else if !errors.As(err, new(*RateLimitError)) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
