package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayGrowthAndCap(t *testing.T) {
	p := Policy{
		MaxAttempts:   10,
		BaseDelay:     2 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
		JitterRatio:   0,
	}

	if got := p.Delay(0); got != 2*time.Second {
		t.Errorf("Delay(0) = %s, want 2s", got)
	}
	if got := p.Delay(1); got != 4*time.Second {
		t.Errorf("Delay(1) = %s, want 4s", got)
	}
	if got := p.Delay(2); got != 8*time.Second {
		t.Errorf("Delay(2) = %s, want 8s", got)
	}

	// 2 * 2^10 = 2048s, well past the cap
	if got := p.Delay(10); got != 60*time.Second {
		t.Errorf("Delay(10) = %s, want capped 60s", got)
	}
}

func TestDelayJitterBounds(t *testing.T) {
	p := DefaultPolicy()

	for attempt := 0; attempt < 12; attempt++ {
		base := float64(p.BaseDelay) * pow(p.BackoffFactor, attempt)
		if base > float64(p.MaxDelay) {
			base = float64(p.MaxDelay)
		}
		upper := time.Duration(base * (1 + p.JitterRatio))

		for i := 0; i < 50; i++ {
			d := p.Delay(attempt)
			if d < time.Duration(base) {
				t.Fatalf("Delay(%d) = %s below un-jittered base %s", attempt, d, time.Duration(base))
			}
			if d > upper {
				t.Fatalf("Delay(%d) = %s above jitter ceiling %s", attempt, d, upper)
			}
		}
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	attempts := 0
	err := p.Do(context.Background(), "test-op", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("op ran %d times, want 3", attempts)
	}
}

func TestDoExhaustionReturnsOriginalError(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	sentinel := errors.New("permanent failure")
	attempts := 0
	err := p.Do(context.Background(), "test-op", func() error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Do returned %v, want the original sentinel unwrapped", err)
	}
	if attempts != 4 {
		t.Errorf("op ran %d times, want MaxAttempts=4", attempts)
	}
}

func TestDoCancelledBeforeFirstAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := p.Do(ctx, "test-op", func() error {
		attempts++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do returned %v, want context.Canceled", err)
	}
	if attempts != 0 {
		t.Errorf("op ran %d times after cancellation, want 0", attempts)
	}
}

func TestDoCancelCutsBackoffShort(t *testing.T) {
	// An hour-long backoff would hang the test unless cancellation
	// interrupts the sleep.
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1}

	ctx, cancel := context.WithCancel(context.Background())
	opErr := errors.New("flaky")

	start := time.Now()
	err := p.Do(ctx, "test-op", func() error {
		cancel()
		return opErr
	})
	if !errors.Is(err, opErr) {
		t.Fatalf("Do returned %v, want the op's own error", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do took %s, cancellation should have cut the backoff short", elapsed)
	}
}
