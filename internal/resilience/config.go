// Package resilience classifies crawl failures and retries the retryable ones
// with exponential backoff.
package resilience

import (
	"time"
)

// FromRetryCap builds a RetryConfig allowing retryCap retries after the first
// attempt, so an always-failing operation runs exactly retryCap+1 times.
func FromRetryCap(retryCap, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if retryCap >= 0 {
		cfg.MaxAttempts = retryCap + 1
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}
