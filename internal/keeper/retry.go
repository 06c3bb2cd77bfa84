package keeper

import (
	"context"
	"time"
)

// retry calls fn until it succeeds, doubling the delay after each failure.
// maxRetries counts the attempts after the first one.
func retry[T any](ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= maxRetries {
			return v, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
