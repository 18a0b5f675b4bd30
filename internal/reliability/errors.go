package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCircuitOpen          = errors.New("circuit breaker: circuit is open")
	ErrCircuitHalfOpenLimit = errors.New("circuit breaker: half-open request limit reached")
	ErrUnknownState         = errors.New("circuit breaker: unknown state")
)

// CircuitBreakerError represents a rejected call with the breaker's context
type CircuitBreakerError struct {
	Name             string
	State            State
	Failures         int
	FailureThreshold int
	NextRetry        time.Time
}

func (e *CircuitBreakerError) Error() string {
	switch e.State {
	case StateOpen:
		retryIn := time.Until(e.NextRetry).Round(time.Millisecond)
		return fmt.Sprintf("circuit breaker %s open (failures=%d/%d, retry in %v)",
			e.Name, e.Failures, e.FailureThreshold, retryIn)
	case StateHalfOpen:
		return fmt.Sprintf("circuit breaker %s half-open: probe limit reached", e.Name)
	default:
		return fmt.Sprintf("circuit breaker %s rejected call in state %v", e.Name, e.State)
	}
}

func (e *CircuitBreakerError) Unwrap() error {
	if e.State == StateHalfOpen {
		return ErrCircuitHalfOpenLimit
	}
	return ErrCircuitOpen
}

// RetryError is returned when every attempt failed
type RetryError struct {
	Attempts  int
	LastError error
	Duration  time.Duration
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry failed after %d attempts over %v: %v",
		e.Attempts, e.Duration.Round(time.Millisecond), e.LastError)
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// permanentError marks an error that must not be retried
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry gives up immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether err may succeed on another attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
