package db

import (
	"sync"
	"time"
)

// Clock supplies timestamps for note writes.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock is a controllable Clock for testing time-dependent behavior.
// Thread-safe for use across goroutines (e.g., test client + HTTP server).
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock frozen at the given time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stamper hands out strictly increasing Unix millisecond timestamps so that
// a write is always ordered after every earlier write from this process,
// even when two writes land in the same millisecond.
type stamper struct {
	mu    sync.Mutex
	clock Clock
	last  int64
}

func (s *stamper) next() int64 {
	return s.after(0)
}

// after is next, additionally kept above floor. Other processes sharing the
// database, or this one before a clock step back, may have written up to floor.
func (s *stamper) after(floor int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UnixMilli()
	now = max(now, s.last+1, floor+1)
	s.last = now
	return now
}
