// Package ratelimit provides the per-sender token bucket consulted by the
// message pipeline before a chat message is persisted.
package ratelimit

import (
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultCapacity is the burst size allowed per sender.
	DefaultCapacity = 5
	// DefaultWindow is the time a fully drained bucket takes to refill.
	DefaultWindow = 10 * time.Second

	bucketTTL       = time.Hour
	janitorInterval = 10 * time.Minute
)

// PolicyText is the fixed throttling message surfaced to rate-limited senders.
const PolicyText = "max 5 per 10 seconds"

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter tracks one continuously-refilling token bucket per user. Buckets
// are created lazily and expire from the store after an hour of inactivity,
// which bounds memory without affecting correctness (an expired bucket is
// indistinguishable from a full one).
type Limiter struct {
	mu       sync.Mutex
	buckets  *gocache.Cache
	capacity float64
	window   time.Duration
	now      func() time.Time
}

// NewLimiter creates a limiter with the platform send policy.
func NewLimiter() *Limiter {
	return NewLimiterWithPolicy(DefaultCapacity, DefaultWindow)
}

// NewLimiterWithPolicy creates a limiter with a custom capacity and window.
func NewLimiterWithPolicy(capacity int, window time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}

	return &Limiter{
		buckets:  gocache.New(bucketTTL, janitorInterval),
		capacity: float64(capacity),
		window:   window,
		now:      time.Now,
	}
}

// Allow consumes one token from userID's bucket. It returns false when the
// bucket is exhausted; the caller must then reject the send without
// persisting anything.
func (l *Limiter) Allow(userID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := key(userID)

	b := &bucket{tokens: l.capacity, lastRefill: now}
	if cached, found := l.buckets.Get(key); found {
		b = cached.(*bucket)
	}

	refillPerSecond := l.capacity / l.window.Seconds()
	b.tokens += now.Sub(b.lastRefill).Seconds() * refillPerSecond
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.lastRefill = now

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}

	l.buckets.Set(key, b, gocache.DefaultExpiration)

	return allowed
}

// Reset drops every tracked bucket. Exposed for administrative tooling; the
// periodic janitor handles routine reclaim.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets.Flush()
}

func key(userID uint) string {
	return "sender:" + strconv.FormatUint(uint64(userID), 10)
}
