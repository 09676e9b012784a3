package server

import (
	"fmt"
	"sync"
	"time"
)

// Limit types reported in errors, headers and metrics.
const (
	limitRequestsPerMinute = "requests_per_minute"
	limitUploadPerDay      = "upload_bytes_per_day"
)

// maxTrackedClients bounds the usage map; stale entries are dropped when it
// is exceeded.
const maxTrackedClients = 10000

// RateLimitError is returned when a client sends requests too fast.
type RateLimitError struct {
	Type       string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d %s, retry after %v", e.Limit, e.Type, e.RetryAfter)
}

// QuotaExceededError is returned when a client used up its daily upload quota.
type QuotaExceededError struct {
	Type   string
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s used %d of %d, resets at %s",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}

// RateLimiter enforces per-client request rates and daily upload quotas with
// fixed windows: calendar minutes for requests and UTC days for uploads.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	maxBytesPerDay    int64

	now     func() time.Time
	clients map[string]*clientUsage
}

type clientUsage struct {
	minute   time.Time
	requests int

	day   time.Time
	bytes int64
}

// NewRateLimiter creates a limiter. A zero limit is not enforced.
func NewRateLimiter(requestsPerMinute int, maxBytesPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxBytesPerDay:    maxBytesPerDay,
		now:               time.Now,
		clients:           make(map[string]*clientUsage),
	}
}

// Allow checks whether client may send a request carrying size bytes and
// records it when it may. Rejected requests are not counted.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UTC()
	minute := now.Truncate(time.Minute)
	day := now.Truncate(24 * time.Hour)

	u, ok := rl.clients[client]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			rl.prune(minute, day)
		}
		u = &clientUsage{minute: minute, day: day}
		rl.clients[client] = u
	}
	if !u.minute.Equal(minute) {
		u.minute, u.requests = minute, 0
	}
	if !u.day.Equal(day) {
		u.day, u.bytes = day, 0
	}

	if rl.requestsPerMinute > 0 && u.requests >= rl.requestsPerMinute {
		return &RateLimitError{
			Type:       limitRequestsPerMinute,
			Limit:      rl.requestsPerMinute,
			RetryAfter: minute.Add(time.Minute).Sub(now),
		}
	}
	if rl.maxBytesPerDay > 0 && u.bytes+size > rl.maxBytesPerDay {
		return &QuotaExceededError{
			Type:   limitUploadPerDay,
			Limit:  rl.maxBytesPerDay,
			Used:   u.bytes,
			Resets: day.Add(24 * time.Hour),
		}
	}

	u.requests++
	u.bytes += size
	return nil
}

// prune drops clients whose windows have both expired.
func (rl *RateLimiter) prune(minute, day time.Time) {
	for id, u := range rl.clients {
		if u.minute.Before(minute) && u.day.Before(day) {
			delete(rl.clients, id)
		}
	}
}
