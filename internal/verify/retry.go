package verify

import (
	"context"
	"errors"
	"net"
	"time"
)

// RetryPolicy bounds how often a failed fetch is repeated. With the defaults
// a citation gets three attempts, waiting 2s then 4s, capped at 8s.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the stock policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: 8 * time.Second}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// backoff returns the wait after the given 1-based failed attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay > p.MaxDelay/2 {
			delay = p.MaxDelay
			break
		}
		delay *= 2
	}
	return p.capped(delay)
}

func (p RetryPolicy) capped(delay time.Duration) time.Duration {
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// retryDelay decides whether err is worth another attempt and how long to wait.
func (p RetryPolicy) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if err == nil || attempt >= p.attempts() || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrVerseNotFound) || errors.Is(err, ErrMalformedLocator) {
		return 0, false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if !statusErr.Retriable() {
			return 0, false
		}
		if statusErr.RetryAfter > 0 {
			return p.capped(statusErr.RetryAfter), true
		}
		return p.backoff(attempt), true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return p.backoff(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return p.backoff(attempt), true
	}
	return 0, false
}

// sleepContext waits for delay or until ctx is done.
func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
