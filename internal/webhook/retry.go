package webhook

import (
	"math/rand/v2"
	"time"
)

// retryDelays is indexed by the number of failed attempts so far, minus one.
var retryDelays = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
	4 * time.Hour,
	8 * time.Hour,
	12 * time.Hour,
}

const (
	// DefaultMaxAttempts is the default maximum delivery attempts.
	DefaultMaxAttempts = 10

	// JitterFactor is the ±fraction of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay returns the backoff after the given failed attempt
// (1-based), with ±20% jitter.
func NextRetryDelay(failedAttempts int) time.Duration {
	i := failedAttempts - 1
	if i < 0 {
		i = 0
	}
	if i >= len(retryDelays) {
		i = len(retryDelays) - 1
	}

	base := float64(retryDelays[i])
	jitter := (rand.Float64()*2 - 1) * base * JitterFactor
	return time.Duration(base + jitter)
}

// NextRetryAt returns when to try again after failedAttempts failures.
func NextRetryAt(failedAttempts int) time.Time {
	return time.Now().UTC().Add(NextRetryDelay(failedAttempts))
}

// IsExhausted returns true if max attempts have been reached.
func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}

// MaxDeliveryWindow is the longest span a delivery can be retried over,
// jitter included.
func MaxDeliveryWindow() time.Duration {
	var total time.Duration
	for _, d := range retryDelays[:DefaultMaxAttempts-1] {
		total += d
	}
	return time.Duration(float64(total) * (1 + JitterFactor))
}
