package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var ErrExhausted = errors.New("retry attempts exhausted")

// RetryManager decides whether a failed attempt is retried and how long to
// wait before the next one.
type RetryManager struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryable   func(error) bool
}

// NewRetryManager creates a RetryManager. A nil retryable treats every error
// as retryable.
func NewRetryManager(maxAttempts int, baseDelay time.Duration, retryable func(error) bool) *RetryManager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	return &RetryManager{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    baseDelay * 16, // Maximum 16x base delay
		retryable:   retryable,
	}
}

func (r *RetryManager) MaxAttempts() int {
	return r.maxAttempts
}

// ShouldRetry reports whether attempt (1-based) may be followed by another
// one, and the delay to wait first.
func (r *RetryManager) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if err == nil || attempt >= r.maxAttempts {
		return false, 0
	}
	if !r.retryable(err) {
		return false, 0
	}
	return true, r.Backoff(attempt)
}

// Backoff calculates exponential backoff delay with jitter
func (r *RetryManager) Backoff(attempt int) time.Duration {
	if attempt <= 0 || r.baseDelay <= 0 {
		return r.baseDelay
	}

	// Exponential backoff: base * 2^(attempt-1)
	backoff := r.baseDelay * time.Duration(1<<(attempt-1))
	if backoff > r.maxDelay || backoff <= 0 {
		backoff = r.maxDelay
	}

	// Apply jitter (±25%)
	if quarter := int64(backoff / 4); quarter > 0 {
		backoff += time.Duration(rand.Int63n(2*quarter+1) - quarter)
	}

	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}
	return backoff
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done.
func (r *RetryManager) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		retry, delay := r.ShouldRetry(attempt, err)
		if !retry {
			if attempt >= r.maxAttempts && r.retryable(err) {
				return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
			}
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
}
