package reliability

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides whether a failed post is attempted again
type RetryPolicy interface {
	// ShouldRetry reports whether attempt (zero based) may be followed by another, and after what delay
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	// MaxRetries returns the maximum number of retries after the first attempt
	MaxRetries() int
}

// ExponentialBackoff implements exponential backoff retry policy
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates a new exponential backoff policy
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxRetries int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxRetries,
		Jitter:          true,
	}
}

// ShouldRetry implements RetryPolicy
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts || !IsRetryable(err) {
		return false, 0
	}
	return true, e.NextDelay(attempt)
}

// MaxRetries implements RetryPolicy
func (e *ExponentialBackoff) MaxRetries() int {
	return e.MaxAttempts
}

// NextDelay returns the delay after the given attempt
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}

	if e.Jitter {
		// ±15%
		jitter := rand.Float64() * 0.3 * delay
		delay = delay + jitter - (0.15 * delay)
	}

	return time.Duration(delay)
}

// FixedDelay retries after a constant delay
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

// NewFixedDelay creates a new fixed delay policy
func NewFixedDelay(delay time.Duration, maxRetries int) *FixedDelay {
	return &FixedDelay{
		Delay:       delay,
		MaxAttempts: maxRetries,
	}
}

// ShouldRetry implements RetryPolicy
func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= f.MaxAttempts || !IsRetryable(err) {
		return false, 0
	}
	return true, f.Delay
}

// MaxRetries implements RetryPolicy
func (f *FixedDelay) MaxRetries() int {
	return f.MaxAttempts
}

// Retry runs fn until it succeeds, the policy gives up or ctx is done.
// Exhausted retries are reported as *RetryError; a non-retryable first
// failure is returned unchanged.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		retry, delay := policy.ShouldRetry(attempt, err)
		if !retry {
			if attempt == 0 || !IsRetryable(err) {
				return err
			}
			return &RetryError{Attempts: attempt + 1, LastError: err, Duration: time.Since(start)}
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
