// Package retry runs an attempt function with a bounded number of retries
// separated by a fixed delay.
package retry

import (
	"context"
	"time"
)

// Result is implemented by attempt results that can report success.
type Result interface {
	OK() bool
}

// Policy controls Run. The zero value makes exactly one attempt.
type Policy[T Result] struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Delay is waited between consecutive attempts.
	Delay time.Duration
	// ShouldRetry filters which failures are retried. Nil retries every failure.
	ShouldRetry func(T) bool
	// OnRetry is called after a failed attempt when another one is scheduled.
	OnRetry func(attempt int, last T, delay time.Duration)
	// Sleep waits for d or until ctx ends. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run calls attempt until it succeeds, the policy gives up, or ctx ends
// during a wait. It returns the last result and the number of attempts
// made. Attempts are strictly sequential.
func Run[T Result](ctx context.Context, p Policy[T], attempt func(ctx context.Context, n int) T) (T, int) {
	maxRetries := max(p.MaxRetries, 0)
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	n := 1
	last := attempt(ctx, n)
	for !last.OK() && n <= maxRetries {
		if p.ShouldRetry != nil && !p.ShouldRetry(last) {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(n, last, p.Delay)
		}
		if err := sleep(ctx, p.Delay); err != nil {
			break
		}
		n++
		last = attempt(ctx, n)
	}
	return last, n
}

// Sleep blocks for d or until ctx is done, whichever comes first.
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
