package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the protected function while the circuit is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Circuit is open, requests fail immediately
	StateHalfOpen                     // Testing if service has recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Stats is a snapshot of circuit breaker counters
type Stats struct {
	State       CircuitState
	Requests    int64
	Failures    int64
	FailureRate float64 // percent
	LastFailure time.Time
	Consecutive int
}

// CircuitBreaker stops calling a failing dependency until it has had time to recover
type CircuitBreaker struct {
	name         string
	maxFailures  int           // Consecutive failures before opening the circuit
	resetTimeout time.Duration // Time to wait before attempting half-open
	halfOpenMax  int           // Successful probes needed to close again

	mu            sync.Mutex
	state         CircuitState
	failures      int
	probes        int // in-flight or completed probes in half-open
	successes     int
	lastFailTime  time.Time
	requests      int64
	totalFailures int64

	onStateChange func(name string, from, to CircuitState)
	now           func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  1,
		state:        StateClosed,
		now:          time.Now,
	}
}

// OnStateChange registers a hook called (under the breaker lock) on every transition
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Name returns the name of the protected dependency
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn if the circuit allows it and records the outcome.
// Every error counts as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteWith(fn, func(err error) bool { return err != nil })
}

// ExecuteWith runs fn if the circuit allows it. Only errors for which
// isFailure returns true count against the breaker; other errors are
// returned to the caller and recorded as a healthy call.
// A panic in fn is recorded as a failure and then re-raised.
func (cb *CircuitBreaker) ExecuteWith(fn func() error, isFailure func(error) bool) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	recorded := false
	defer func() {
		if !recorded {
			cb.RecordResult(false)
		}
	}()

	err := fn()
	recorded = true
	cb.RecordResult(err == nil || !isFailure(err))
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) < cb.resetTimeout {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.probes = 1
		return true

	case StateHalfOpen:
		if cb.probes < cb.halfOpenMax {
			cb.probes++
			return true
		}
		return false
	}

	return false
}

// RecordResult records the outcome of a call made outside Execute
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++

	if success {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.halfOpenMax {
				cb.setState(StateClosed)
			}
		}
		return
	}

	cb.totalFailures++
	cb.lastFailTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// Any failed probe reopens the circuit
		cb.setState(StateOpen)
	}
}

// setState must be called with cb.mu held
func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.probes = 0
	cb.successes = 0
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns statistics about the circuit breaker
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Stats{
		State:       cb.state,
		Requests:    cb.requests,
		Failures:    cb.totalFailures,
		LastFailure: cb.lastFailTime,
		Consecutive: cb.failures,
	}
	if s.Requests > 0 {
		s.FailureRate = float64(s.Failures) / float64(s.Requests) * 100.0
	}
	return s
}
