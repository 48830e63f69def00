package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// State represents the current state of the circuit breaker
type State int

const (
	StateClosed   State = iota // Normal operation, requests allowed
	StateOpen                  // Circuit is tripped, requests blocked
	StateHalfOpen              // Testing if service has recovered
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
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// CircuitBreaker implements the circuit breaker pattern to prevent cascading failures
// by temporarily stopping operations when a threshold of failures is reached.
type CircuitBreaker struct {
	state     State         // Current state of the circuit breaker
	failures  int           // Count of consecutive failures
	threshold int           // Number of failures before opening circuit
	timeout   time.Duration // How long to wait before attempting recovery
	lastError error         // Most recent error that occurred
	mu        sync.Mutex    // Protects concurrent access to state
	openTime  time.Time     // When the circuit was opened
	clock     clockwork.Clock
	logger    *logrus.Entry
}

// NewCircuitBreaker creates a new circuit breaker with the specified failure threshold
// and recovery timeout duration.
//
// Parameters:
//   - threshold: Number of consecutive failures before opening the circuit
//   - timeout: Duration to wait before attempting recovery in half-open state
//
// Returns:
//   - *CircuitBreaker: A new circuit breaker instance in the closed state
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreakerWithClock(threshold, timeout, clockwork.NewRealClock())
}

// NewCircuitBreakerWithClock is NewCircuitBreaker with an explicit time source.
func NewCircuitBreakerWithClock(threshold int, timeout time.Duration, clock clockwork.Clock) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		state:     StateClosed,
		threshold: threshold,
		timeout:   timeout,
		clock:     clock,
		logger:    logrus.WithField("component", "circuitbreaker"),
	}
}

// AllowRequest checks if a request should be allowed through based on the
// current state of the circuit breaker. An open breaker whose timeout has
// elapsed moves to half-open and lets requests through again.
//
// Returns:
//   - bool: true if request should be allowed, false if it should be blocked
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return true
	}
	if cb.clock.Since(cb.openTime) > cb.timeout {
		cb.state = StateHalfOpen
		cb.logger.Warn("Circuit breaker transitioned to half-open")
		return true
	}
	return false
}

// RecordResult records the result of a request and updates the circuit breaker state.
// Failed requests increment the failure counter and may open the circuit.
// Successful requests reset the failure counter and close the circuit.
//
// Parameters:
//   - err: The error result to record (nil for success)
func (cb *CircuitBreaker) RecordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		// Record failure and check threshold
		cb.failures++
		cb.lastError = err
		// a failed trial request reopens immediately
		if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.threshold) {
			cb.state = StateOpen
			cb.openTime = cb.clock.Now()
			cb.logger.WithError(err).Warn("Circuit breaker opened")
		}
		return
	}

	// Reset on success
	cb.failures = 0
	if cb.state != StateClosed {
		cb.state = StateClosed
		cb.logger.Info("Circuit breaker closed")
	}
}

// State returns the current state without triggering the half-open transition.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.lastError
}
