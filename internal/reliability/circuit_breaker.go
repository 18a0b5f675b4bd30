package reliability

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeFunc is notified after every transition
type StateChangeFunc func(name string, from, to State)

// CircuitBreaker stops calls to a host channel that keeps failing
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	halfOpenInFlight int
	lastFailureTime  time.Time
	totalRequests    int64
	totalFailures    int64
	totalRejected    int64

	failureThreshold int
	successThreshold int
	timeout          time.Duration
	halfOpenRequests int
	name             string
	onStateChange    StateChangeFunc
}

// CircuitBreakerOption configures the circuit breaker
type CircuitBreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets consecutive failures needed to open the circuit
func WithFailureThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureThreshold = threshold
	}
}

// WithSuccessThreshold sets successes needed in half-open state to close again
func WithSuccessThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.successThreshold = threshold
	}
}

// WithTimeout sets how long the circuit stays open
func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.timeout = timeout
	}
}

// WithHalfOpenRequests sets the max concurrent probes in half-open state
func WithHalfOpenRequests(requests int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.halfOpenRequests = requests
	}
}

// WithName sets the circuit breaker name for identification
func WithName(name string) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.name = name
	}
}

// WithStateChange registers a transition callback. It runs synchronously
// with the breaker lock released.
func WithStateChange(fn StateChangeFunc) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(options ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		timeout:          5 * time.Second,
		halfOpenRequests: 1,
		name:             "host",
	}

	for _, opt := range options {
		opt(cb)
	}

	return cb
}

// Execute runs fn unless the circuit rejects the call
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		cb.release()
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and clears counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenInFlight = 0
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	cb.totalRequests++

	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return nil

	case StateOpen:
		nextRetry := cb.lastFailureTime.Add(cb.timeout)
		if time.Now().Before(nextRetry) {
			cb.totalRejected++
			err := &CircuitBreakerError{
				Name:             cb.name,
				State:            StateOpen,
				Failures:         cb.failures,
				FailureThreshold: cb.failureThreshold,
				NextRetry:        nextRetry,
			}
			cb.mu.Unlock()
			return err
		}
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.halfOpenInFlight = 1
		cb.mu.Unlock()
		cb.notify(StateOpen, StateHalfOpen)
		return nil

	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.halfOpenRequests {
			cb.totalRejected++
			err := &CircuitBreakerError{Name: cb.name, State: StateHalfOpen}
			cb.mu.Unlock()
			return err
		}
		cb.halfOpenInFlight++
		cb.mu.Unlock()
		return nil

	default:
		cb.mu.Unlock()
		return ErrUnknownState
	}
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	from := cb.state

	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if err != nil {
		cb.failures++
		cb.totalFailures++
		cb.lastFailureTime = time.Now()
		cb.successes = 0

		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.failureThreshold {
				cb.state = StateOpen
			}
		case StateHalfOpen:
			// one failed probe reopens
			cb.state = StateOpen
		}
	} else {
		switch cb.state {
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.successThreshold {
				cb.state = StateClosed
				cb.failures = 0
				cb.successes = 0
			}
		case StateClosed:
			cb.failures = 0
		}
	}

	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.onStateChange != nil && from != to {
		cb.onStateChange(cb.name, from, to)
	}
}

// GetMetrics returns circuit breaker metrics
func (cb *CircuitBreaker) GetMetrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		Name:            cb.name,
		State:           cb.state,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalRejected:   cb.totalRejected,
		CurrentFailures: cb.failures,
		LastFailureTime: cb.lastFailureTime,
	}
}

// CircuitBreakerMetrics is a point-in-time view of a breaker
type CircuitBreakerMetrics struct {
	Name            string
	State           State
	TotalRequests   int64
	TotalFailures   int64
	TotalRejected   int64
	CurrentFailures int
	LastFailureTime time.Time
}
