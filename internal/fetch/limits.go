package fetch

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On 429 it halves the rate (down to initial/4 minimum).
// On success it recovers by 20%, never above the configured rate.
type AdaptiveLimiter struct {
	site        string
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter for one site.
func NewAdaptiveLimiter(site string, initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		site:        site,
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to the initial rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate >= a.initialRate {
		return
	}
	newRate := a.currentRate * 1.2
	if newRate > a.initialRate {
		newRate = a.initialRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.String("site", a.site),
		zap.Float64("new_rate", float64(newRate)),
	)
}

// limit returns the current rate limit.
func (a *AdaptiveLimiter) limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// SiteLimit is the configured fair-use rate for one site.
type SiteLimit struct {
	Rate  float64 // requests per second
	Burst int
}

// Limits is the single coordinator of per-site limiters shared by all workers.
type Limits struct {
	mu       sync.Mutex
	sites    map[string]*AdaptiveLimiter
	config   map[string]SiteLimit
	fallback SiteLimit
}

// NewLimits creates a coordinator. Sites missing from cfg use fallback.
func NewLimits(cfg map[string]SiteLimit, fallback SiteLimit) *Limits {
	if fallback.Rate <= 0 {
		fallback.Rate = 1
	}
	if fallback.Burst <= 0 {
		fallback.Burst = 1
	}
	conf := make(map[string]SiteLimit, len(cfg))
	for k, v := range cfg {
		conf[k] = v
	}
	return &Limits{
		sites:    make(map[string]*AdaptiveLimiter),
		config:   conf,
		fallback: fallback,
	}
}

// For returns the limiter for site, creating it on first use.
func (l *Limits) For(site string) *AdaptiveLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.sites[site]; ok {
		return lim
	}
	sl, ok := l.config[site]
	if !ok || sl.Rate <= 0 {
		sl.Rate = l.fallback.Rate
	}
	if sl.Burst <= 0 {
		sl.Burst = l.fallback.Burst
	}
	lim := NewAdaptiveLimiter(site, rate.Limit(sl.Rate), sl.Burst)
	l.sites[site] = lim
	return lim
}
