package indexer

import (
	"context"
	"time"
)

type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// delay returns the backoff before retry n (0-based), doubling from the
// base delay up to the cap.
func (p retryPolicy) delay(n int) time.Duration {
	d := p.baseDelay
	for i := 0; i < n && d < p.maxDelay; i++ {
		d *= 2
	}
	if p.maxDelay > 0 && d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}

// withRetry calls fn until it succeeds, the attempts run out, or ctx ends.
func withRetry(ctx context.Context, p retryPolicy, fn func() error) error {
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for n := 0; n < attempts; n++ {
		if err = fn(); err == nil {
			return nil
		}
		if n == attempts-1 {
			break
		}
		timer := time.NewTimer(p.delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
