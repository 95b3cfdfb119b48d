// Package ratelimit throttles API clients. Each client key, by default the
// remote host, gets its own token bucket; buckets nobody has used for a
// cleanup interval are dropped so the table tracks only active clients.
package ratelimit

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config sets the bucket shape shared by every client.
type Config struct {
	RPS             float64       // refill rate, tokens per second
	Burst           int           // bucket capacity
	CleanupInterval time.Duration // idle time after which a client's bucket is dropped
}

// DefaultConfig matches the RATE_LIMIT_* defaults.
var DefaultConfig = Config{
	RPS:             20,
	Burst:           40,
	CleanupInterval: time.Hour,
}

// bucket is one client's limiter and the last time the client was seen.
type bucket struct {
	*rate.Limiter
	seen atomic.Int64 // unix nanoseconds
}

func (b *bucket) touch() *rate.Limiter {
	b.seen.Store(time.Now().UnixNano())
	return b.Limiter
}

// RateLimiter maps client keys to token buckets. A background loop evicts
// idle buckets until Stop is called.
type RateLimiter struct {
	cfg Config

	mu      sync.RWMutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup
}

// NewRateLimiter starts the eviction loop. A non-positive CleanupInterval
// takes the default.
func NewRateLimiter(cfg Config) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig.CleanupInterval
	}
	rl := &RateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	rl.done.Add(1)
	go rl.evictLoop()
	return rl
}

// Allow takes a token from the client's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// GetLimiter returns the client's bucket, creating a full one on first sight,
// and marks the client as active.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()
	if ok {
		return b.touch()
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[key]; !ok {
		b = &bucket{Limiter: rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst)}
		rl.buckets[key] = b
	}
	return b.touch()
}

// RetryAfter is how many whole seconds an emptied bucket needs to refill
// one token, at least 1.
func (rl *RateLimiter) RetryAfter() int {
	if rl.cfg.RPS <= 0 {
		return DefaultRetryAfterSeconds
	}
	return max(1, int(math.Ceil(1/rl.cfg.RPS)))
}

// Cleanup drops the buckets of clients idle for longer than CleanupInterval.
func (rl *RateLimiter) Cleanup() {
	cutoff := time.Now().Add(-rl.cfg.CleanupInterval).UnixNano()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if b.seen.Load() < cutoff {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) evictLoop() {
	defer rl.done.Done()
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the eviction loop and waits for it. Later calls do nothing.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	rl.done.Wait()
}

// Len is the number of clients currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.buckets)
}
