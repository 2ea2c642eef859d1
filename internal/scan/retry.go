package scan

import (
	"context"
	"time"
)

const defaultBackoff = 100 * time.Millisecond

// WithRetry runs fn up to maxRetries+1 times, doubling the delay between attempts.
// Context cancellation stops the loop immediately.
func WithRetry(ctx context.Context, maxRetries int, backoff time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff << (attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}
