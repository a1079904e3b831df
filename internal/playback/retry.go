package playback

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/desertthunder/playsync/internal/shared"
)

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Factor      float64
}

// DefaultRetryPolicy returns the device discovery policy: 300ms doubling up to 3s, 8 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   300 * time.Millisecond,
		MaxDelay:    3000 * time.Millisecond,
		MaxAttempts: 8,
		Factor:      2,
	}
}

// RetryPolicyFromConfig builds a policy from the [discovery] config section; unset values keep their defaults.
func RetryPolicyFromConfig(cfg shared.DiscoveryConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.BaseDelayMS > 0 {
		p.BaseDelay = shared.Millis(cfg.BaseDelayMS)
	}
	if cfg.MaxDelayMS > 0 {
		p.MaxDelay = shared.Millis(cfg.MaxDelayMS)
	}
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Factor >= 1 {
		p.Factor = cfg.Factor
	}
	return p
}

// Delay returns the wait before the zero-based attempt: min(BaseDelay * Factor^attempt, MaxDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real [WaitFunc].
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttemptFunc runs one attempt. done stops the loop; an error only marks the attempt as failed.
type AttemptFunc func(ctx context.Context, attempt int) (done bool, err error)

// Retry waits Delay(attempt) and then runs fn, strictly sequentially, until fn reports done, ctx is cancelled,
// or MaxAttempts attempts have run. It returns the number of attempts made.
//
// Exhaustion returns an error wrapping [shared.ErrRetryExhausted] and the last attempt error, if any.
func Retry(ctx context.Context, policy RetryPolicy, wait WaitFunc, fn AttemptFunc) (int, error) {
	if wait == nil {
		wait = Sleep
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := wait(ctx, policy.Delay(attempt)); err != nil {
			return attempt, err
		}
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		done, err := fn(ctx, attempt)
		if done {
			return attempt + 1, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return policy.MaxAttempts, fmt.Errorf("%w after %d attempts: %v", shared.ErrRetryExhausted, policy.MaxAttempts, lastErr)
	}
	return policy.MaxAttempts, fmt.Errorf("%w after %d attempts", shared.ErrRetryExhausted, policy.MaxAttempts)
}
