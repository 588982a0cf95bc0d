package marketdata

import (
	"context"
	"sync"
	"time"
)

// tokenBucket is a lazy-refill rate limiter. Tokens accrue from
// elapsed wall time at acquisition; there is no background timer.
// Callers block until a token is available rather than failing.
type tokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	refillRate   float64 // tokens per second
	tokens       float64
	lastRefillAt time.Time
}

func newTokenBucket(capacity int, refillRate float64) *tokenBucket {
	return &tokenBucket{
		capacity:     float64(capacity),
		refillRate:   refillRate,
		tokens:       float64(capacity),
		lastRefillAt: time.Now(),
	}
}

// Wait blocks until a token is available or the context is canceled
func (b *tokenBucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill(time.Now())
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		// Time needed to accrue one token at the current rate
		wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill must be called with the mutex held
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefillAt).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefillAt = now
}

// Available returns the current token count, refilling first. Used by
// status endpoints and tests.
func (b *tokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(time.Now())
	return b.tokens
}
