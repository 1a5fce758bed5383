package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"fedialt/pkg/config"
)

// BackoffStrategy computes the delay before a given retry attempt.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Factor per attempt, capped at
// MaxDelay, with optional uniform jitter to avoid thundering-herd retries
// across concurrent callers.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Factor       float64
	JitterFactor float64 // 0 disables jitter
}

// FromConfig builds an ExponentialBackoff from the retry configuration.
func FromConfig(cfg config.RetryConfig) *ExponentialBackoff {
	jitter := 0.0
	if cfg.Jitter {
		jitter = cfg.JitterFactor
	}
	return &ExponentialBackoff{
		BaseDelay:    cfg.BaseDelay,
		MaxDelay:     cfg.MaxDelay,
		Factor:       cfg.BackoffFactor,
		JitterFactor: jitter,
	}
}

// NextDelay returns min(MaxDelay, BaseDelay * Factor^(attempt-1)),
// perturbed by ±delay*JitterFactor when jitter is enabled.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Factor, float64(attempt-1))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ConstantBackoff returns the same delay for every attempt.
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Sleep waits for the given duration or until the context is cancelled.
// This is the retry loop's only suspension point.
func Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
