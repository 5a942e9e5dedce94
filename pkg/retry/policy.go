// Package retry defines the bounded exponential backoff policy applied to
// failed action attempts.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy bounds how often and how quickly a failed action is retried. Bounded
// attempts are a hard invariant: a permanently failing action is never
// re-enqueued indefinitely.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry, e.g. 2.0 doubles it.
	Multiplier float64

	// Jitter adds up to this random fraction of variation to each delay,
	// e.g. 0.1 for +/-10%.
	Jitter float64
}

// Default is the engine's standard policy: 3 attempts, 1s initial delay
// doubling each retry, capped at 30s, with 10% jitter.
func Default() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// None is a policy without retries, used by tests and one-shot actions.
func None() Policy {
	return Policy{MaxAttempts: 1, Multiplier: 1.0}
}

// ShouldRetry reports whether another attempt should follow the given failed
// attempt (1-indexed).
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// NextDelay returns the backoff before the retry that follows the given
// failed attempt (1-indexed): InitialDelay * Multiplier^(attempt-1), capped at
// MaxDelay, with jitter applied.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := math.Pow(p.Multiplier, float64(attempt-1))
	delay := time.Duration(float64(p.InitialDelay) * multiplier)

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter > 0 {
		factor := 1 - p.Jitter + 2*p.Jitter*rand.Float64()
		delay = time.Duration(float64(delay) * factor)
	}

	return delay
}
