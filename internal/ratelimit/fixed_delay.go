package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedDelay spaces consecutive requests at least delay apart.
type FixedDelay struct {
	delay       time.Duration
	lastRequest time.Time
	mu          sync.Mutex
}

// NewFixedDelay creates a fixed delay limiter.
func NewFixedDelay(cfg Config) *FixedDelay {
	cfg = applyDefaults(cfg)
	return &FixedDelay{delay: cfg.FixedDelay}
}

// Wait claims the next slot and sleeps until it arrives.
func (fd *FixedDelay) Wait(ctx context.Context) error {
	fd.mu.Lock()
	now := time.Now()
	wait := fd.reserve(now)
	fd.lastRequest = now.Add(wait)
	fd.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return sleepCtx(ctx, wait)
}

// Allow claims a slot only if no wait is needed.
func (fd *FixedDelay) Allow() bool {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	now := time.Now()
	if fd.reserve(now) > 0 {
		return false
	}
	fd.lastRequest = now
	return true
}

// Reserve reports the time until the next slot.
func (fd *FixedDelay) Reserve() time.Duration {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.reserve(time.Now())
}

func (fd *FixedDelay) reserve(now time.Time) time.Duration {
	if fd.lastRequest.IsZero() {
		return 0
	}
	elapsed := now.Sub(fd.lastRequest)
	if elapsed >= fd.delay {
		return 0
	}
	return fd.delay - elapsed
}

// Reset forgets the previous request.
func (fd *FixedDelay) Reset() {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.lastRequest = time.Time{}
}
