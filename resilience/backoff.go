package resilience

import (
	"context"
	"math/rand"
	"time"
)

// Backoff computes the delay before a retry. attempt is the zero-indexed
// count of retries already performed, so the first retry uses attempt 0.
//
// The unjittered delay doubles each attempt and is capped at max:
// min(base * 2^attempt, max). Jitter then scales the capped delay by a factor
// drawn uniformly from [1-jitter, 1+jitter], spreading out retry storms from
// concurrent callers.
func Backoff(attempt int, base, max time.Duration, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return 0
	}

	capped := max
	// Guard the shift so large attempt counts cannot overflow.
	if attempt < 63 {
		d := base << uint(attempt)
		if d > 0 && d < max {
			capped = d
		}
	}

	if jitter <= 0 {
		return capped
	}

	factor := 1 + (rand.Float64()*2-1)*jitter
	return time.Duration(float64(capped) * factor)
}

// Sleep suspends for d or until the context is cancelled, whichever comes
// first. It is the only suspension point in the retry loop, so cancelling the
// context aborts a pending retry without waiting out the full delay.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
