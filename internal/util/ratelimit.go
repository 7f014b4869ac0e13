package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket holding at most burst tokens, refilled at a
// fixed rate. It is safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	burst    float64
	tokens   float64
	lastTime time.Time
	now      func() time.Time
}

// NewRateLimiter allows perMinute operations per minute with a burst of one.
// A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		rate:     float64(perMinute) / 60.0,
		burst:    1,
		tokens:   1,
		lastTime: time.Now(),
		now:      time.Now,
	}
}

// take reports whether a token was consumed, and if not, how long until one
// is due.
func (rl *RateLimiter) take() (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.rate <= 0 {
		return true, 0
	}
	now := rl.now()
	rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastTime = now
	if rl.tokens >= 1 {
		rl.tokens--
		return true, 0
	}
	need := (1 - rl.tokens) / rl.rate
	return false, time.Duration(need * float64(time.Second))
}

// Wait blocks until a token is available or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		ok, wait := rl.take()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
