package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is the backoff policy shared by fetch and persistence calls.
// Zero fields take the DefaultRetryConfig values, except JitterFraction
// where zero disables jitter.
type RetryConfig struct {
	MaxAttempts    int // total attempts, first call included
	InitialBackoff time.Duration
	MaxBackoff     time.Duration // also caps Retry-After hints
	Multiplier     float64
	JitterFraction float64 // 0.25 spreads each delay by ±25%

	// ShouldRetry decides which errors earn another attempt. Nil means
	// IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is three attempts starting at 500ms, doubling to 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx ends. The last error is returned.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that produce a value. A RetryAfterHint in the error
// chain raises the next delay to at least the hinted duration.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		switch {
		case err == nil:
			return val, nil
		case ctx.Err() != nil, !retryable(err), attempt >= cfg.MaxAttempts:
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !sleep(ctx, cfg.delay(attempt-1, err)) {
			return zero, err
		}
	}
}

// sleep waits d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.Multiplier <= 0 {
		c.Multiplier = def.Multiplier
	}
	c.JitterFraction = max(c.JitterFraction, 0)
	return c
}

// delay is the wait before retry number n (0-based) after err.
func (c RetryConfig) delay(n int, err error) time.Duration {
	d := c.backoff(n)
	if hint := retryAfterOf(err); hint > d {
		d = min(hint, c.MaxBackoff)
	}
	return d
}

// backoff is InitialBackoff*Multiplier^n capped at MaxBackoff, then jittered.
func (c RetryConfig) backoff(n int) time.Duration {
	d := min(float64(c.InitialBackoff)*math.Pow(c.Multiplier, float64(n)), float64(c.MaxBackoff))
	if c.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * c.JitterFraction
	}
	return time.Duration(max(d, 0))
}

// RetryLogger returns an OnRetry callback that logs each retry with its
// error kind.
func RetryLogger(site, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying",
			zap.String("site", site),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
	}
}
