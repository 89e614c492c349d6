package detect

import (
	"context"
	"log"
	"time"
)

// Retry runs a model call again on rate-limited or unavailable failures,
// doubling the delay each time. Other kinds return immediately.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetry() Retry {
	return Retry{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// Do calls fn until it succeeds, fails with a non-retryable kind, or attempts
// run out. A non-nil result is always an *Error.
func (r Retry) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	delay := r.BaseDelay

	var last *Error
	for try := 1; try <= attempts; try++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = Classify(err)
		if !last.Retryable() || try == attempts {
			break
		}
		log.Printf("retry op=%s attempt=%d kind=%s delay_ms=%d", op, try, last.Kind, delay.Milliseconds())
		if err := sleep(ctx, delay); err != nil {
			return Classify(err)
		}
		delay *= 2
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
