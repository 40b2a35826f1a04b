// Package ratelimit paces calls to external scientific services.
package ratelimit

import (
	"context"
	"time"
)

// Limiter paces outbound requests.
type Limiter interface {
	// Wait blocks until a request may proceed or ctx is done.
	Wait(ctx context.Context) error
	Allow() bool
	Reserve() time.Duration
	Reset()
}

// Strategy names a pacing algorithm.
type Strategy string

const (
	StrategyTokenBucket Strategy = "token_bucket"
	StrategyFixedWindow Strategy = "fixed_window"
	StrategyFixedDelay  Strategy = "fixed_delay"
	// StrategyNone disables pacing.
	StrategyNone Strategy = "none"
)

// New creates a limiter for cfg.
func New(cfg Config) Limiter {
	cfg = applyDefaults(cfg)
	switch cfg.Strategy {
	case StrategyFixedWindow:
		return NewFixedWindow(cfg)
	case StrategyFixedDelay:
		return NewFixedDelay(cfg)
	case StrategyNone:
		return Unlimited{}
	default:
		return NewTokenBucket(cfg)
	}
}

// Unlimited never blocks.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Reserve() time.Duration         { return 0 }
func (Unlimited) Reset()                         {}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
