package ratelimit

import (
	"sync"
	"time"
)

// bucket is a token bucket refilled in whole intervals.
type bucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	refillRate int
	interval   time.Duration
	lastRefill time.Time
	lastSeen   time.Time
}

func newBucket(capacity, refillRate int, interval time.Duration, now time.Time) *bucket {
	return &bucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		interval:   interval,
		lastRefill: now,
		lastSeen:   now,
	}
}

// refill adds refillRate tokens per elapsed whole interval.
// lastRefill only advances by whole intervals so partial progress is never lost.
// Caller holds b.mu.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.interval {
		return
	}
	intervals := int(elapsed / b.interval)
	b.tokens = min(b.capacity, b.tokens+intervals*b.refillRate)
	b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * b.interval)
}

// take refills and consumes one token. It reports whether a token was available.
func (b *bucket) take(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeen = now
	b.refill(now)
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// giveBack returns a token consumed by take.
func (b *bucket) giveBack() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = min(b.capacity, b.tokens+1)
}

// snapshot returns the remaining tokens and the time the next refill lands.
func (b *bucket) snapshot() (remaining int, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens, b.lastRefill.Add(b.interval)
}

func (b *bucket) idleSince(now time.Time) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	return now.Sub(b.lastSeen), b.tokens >= b.capacity
}
