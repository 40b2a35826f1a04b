package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedWindow admits up to limit requests per one-second window.
type FixedWindow struct {
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	mu          sync.Mutex
}

// NewFixedWindow creates a fixed window limiter.
func NewFixedWindow(cfg Config) *FixedWindow {
	cfg = applyDefaults(cfg)
	limit := int(cfg.RequestsPerSec)
	if limit < 1 {
		limit = 1
	}
	return &FixedWindow{
		limit:       limit,
		window:      time.Second,
		windowStart: time.Now(),
	}
}

// Wait blocks until the current or a later window has capacity.
func (fw *FixedWindow) Wait(ctx context.Context) error {
	for {
		if fw.Allow() {
			return nil
		}
		wait := fw.Reserve()
		if wait <= 0 {
			continue
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// Allow counts a request if the window has capacity.
func (fw *FixedWindow) Allow() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.roll(time.Now())
	if fw.count < fw.limit {
		fw.count++
		return true
	}
	return false
}

// Reserve reports the time until the window resets, or zero with capacity left.
func (fw *FixedWindow) Reserve() time.Duration {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := time.Now()
	fw.roll(now)
	if fw.count < fw.limit {
		return 0
	}
	return fw.window - now.Sub(fw.windowStart)
}

// Reset starts a fresh window.
func (fw *FixedWindow) Reset() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.count = 0
	fw.windowStart = time.Now()
}

func (fw *FixedWindow) roll(now time.Time) {
	if now.Sub(fw.windowStart) >= fw.window {
		fw.count = 0
		fw.windowStart = now
	}
}
