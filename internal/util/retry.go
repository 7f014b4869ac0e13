package util

import (
	"context"
	"errors"
	"time"
)

// ErrPermanent wraps an error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Retry calls fn up to maxAttempts times, doubling the delay from baseDelay
// after each failure. Errors wrapping ErrPermanent stop the loop at once.
// The last error is returned when every attempt fails.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) || attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}
