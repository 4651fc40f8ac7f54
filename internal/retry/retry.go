package retry

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"
)

// Policy controls exponential backoff between attempts.
//
// Every error is treated as retryable. Acquisition and transcription mostly
// fail on flaky pages or rate limiting, so the policy stays pessimistic and
// retries everything rather than guessing which errors are permanent.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterRatio   float64 // fraction of the delay added as random jitter, [0,1)
}

// DefaultPolicy returns the policy used by the pipeline unless overridden
// in the config file.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   10,
		BaseDelay:     2 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
		JitterRatio:   0.25,
	}
}

// Delay returns the backoff delay before retrying after attempt number
// `attempt` (0-indexed). The un-jittered delay grows by BackoffFactor per
// attempt and is capped at MaxDelay; jitter only ever adds on top, so the
// result never exceeds MaxDelay * (1 + JitterRatio).
func (p Policy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterRatio > 0 {
		delay *= 1 + rand.Float64()*p.JitterRatio
	}
	return time.Duration(delay)
}

// Do runs op until it succeeds or MaxAttempts is exhausted, sleeping between
// attempts. The last error is returned as-is, never wrapped, so callers can
// still inspect the original failure. A cancelled context cuts the backoff
// sleep short; the attempt already in flight is never interrupted.
func (p Policy) Do(ctx context.Context, name string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		log.Printf("Retry %s: attempt %d/%d failed: %v (next in %s)",
			name, attempt+1, p.MaxAttempts, lastErr, delay.Round(100*time.Millisecond))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			log.Printf("Retry %s: cancelled during backoff", name)
			return lastErr
		}
	}

	log.Printf("Retry %s: giving up after %d attempts: %v", name, p.MaxAttempts, lastErr)
	return lastErr
}
