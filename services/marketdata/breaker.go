package marketdata

import (
	"log"
	"sync"
	"time"
)

// Circuit breaker states
const (
	breakerClosed = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker trips open after a run of consecutive failures and
// lets a single probe call through once the reset timeout has elapsed.
type circuitBreaker struct {
	mu                  sync.Mutex
	state               int
	consecutiveFailures int
	lastFailureAt       time.Time
	failureThreshold    int
	resetTimeout        time.Duration
}

func newCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		state:            breakerClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

// Allow reports whether a call may proceed. While open it returns
// false until resetTimeout has elapsed since the last failure, at
// which point the breaker moves to half-open and admits one probe.
func (cb *circuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed, breakerHalfOpen:
		return true
	case breakerOpen:
		if time.Since(cb.lastFailureAt) >= cb.resetTimeout {
			cb.state = breakerHalfOpen
			log.Printf("Circuit breaker half-open, admitting probe call")
			return true
		}
		return false
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count
func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != breakerClosed {
		log.Printf("Circuit breaker closed after successful call")
	}
	cb.state = breakerClosed
	cb.consecutiveFailures = 0
}

// RecordFailure counts a failure and trips the breaker when the
// threshold is reached. A half-open probe failure reopens immediately.
func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureAt = time.Now()

	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		log.Printf("Circuit breaker reopened: probe call failed")
		return
	}
	if cb.state == breakerClosed && cb.consecutiveFailures >= cb.failureThreshold {
		cb.state = breakerOpen
		log.Printf("Circuit breaker opened after %d consecutive failures", cb.consecutiveFailures)
	}
}

// State returns a human-readable state name for status reporting
func (cb *circuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
