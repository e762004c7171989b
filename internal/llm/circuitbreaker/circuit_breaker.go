// Package circuitbreaker guards providers against cascading failures by
// tracking per-provider error rates and rejecting requests while a provider
// is unhealthy.
package circuitbreaker

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
)

// jitterDivisor sizes the random jitter as a fraction of the open timeout,
// spreading recovery probes across instances.
const jitterDivisor = 10

// CircuitState represents the current state of a circuit breaker.
type CircuitState int32

const (
	// StateClosed allows requests through.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows limited probe requests.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
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

// circuitBreaker tracks the health of a single provider:model pair through
// an atomic state machine.
type circuitBreaker struct {
	state           atomic.Int32
	failures        atomic.Int32
	successes       atomic.Int32
	lastFailureTime atomic.Int64
	halfOpenProbes  atomic.Int32

	failureThreshold  int
	successThreshold  int
	openTimeout       time.Duration
	maxHalfOpenProbes int
}

func newCircuitBreaker(cfg configuration.CircuitBreakerConfig) *circuitBreaker {
	cb := &circuitBreaker{
		failureThreshold:  cfg.FailureThreshold,
		successThreshold:  cfg.SuccessThreshold,
		openTimeout:       cfg.OpenTimeout,
		maxHalfOpenProbes: cfg.HalfOpenProbes,
	}
	cb.state.Store(int32(StateClosed))
	return cb
}

// getJitter returns a random delay up to 10% of the open timeout.
func (cb *circuitBreaker) getJitter() time.Duration {
	jit := cb.openTimeout / jitterDivisor
	if jit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(jit))) // #nosec G404 -- non-cryptographic jitter
}

// allow reports whether a request may proceed. The returned cleanup must be
// called when the request completes so half-open probe slots are released.
func (cb *circuitBreaker) allow() (cleanup func(), err error) {
	state := CircuitState(cb.state.Load())

	switch state {
	case StateClosed:
		return func() {}, nil

	case StateOpen, StateHalfOpen:
		if state == StateOpen {
			lastFailure := time.Unix(0, cb.lastFailureTime.Load())
			if time.Since(lastFailure) <= cb.openTimeout+cb.getJitter() {
				return nil, &llmerrors.CircuitBreakerError{
					State:   StateOpen.String(),
					ResetAt: lastFailure.Add(cb.openTimeout).Unix(),
				}
			}
			cb.transitionTo(StateHalfOpen)
		}
		return cb.acquireProbe()

	default:
		return nil, fmt.Errorf("unknown circuit state: %v", state)
	}
}

// acquireProbe claims one of the limited half-open probe slots.
func (cb *circuitBreaker) acquireProbe() (func(), error) {
	for {
		current := cb.halfOpenProbes.Load()
		if int(current) >= cb.maxHalfOpenProbes {
			return nil, &llmerrors.CircuitBreakerError{
				State: StateHalfOpen.String(),
			}
		}
		if cb.halfOpenProbes.CompareAndSwap(current, current+1) {
			release := func() {
				// Saturate at 0 if a concurrent transition reset the counter.
				for {
					cur := cb.halfOpenProbes.Load()
					if cur == 0 || cb.halfOpenProbes.CompareAndSwap(cur, cur-1) {
						return
					}
				}
			}
			return release, nil
		}
	}
}

// recordSuccess closes the circuit after enough successful half-open probes.
func (cb *circuitBreaker) recordSuccess() {
	for {
		state := cb.state.Load()
		switch CircuitState(state) {
		case StateClosed:
			cb.failures.Store(0)
			return

		case StateHalfOpen:
			successes := cb.successes.Add(1)
			if int(successes) >= cb.successThreshold {
				if cb.state.CompareAndSwap(state, int32(StateClosed)) {
					cb.failures.Store(0)
					cb.successes.Store(0)
					cb.halfOpenProbes.Store(0)
					slog.Info("circuit breaker state transition",
						"from", StateHalfOpen.String(),
						"to", StateClosed.String())
					return
				}
				cb.successes.Add(-1)
				continue
			}
			return

		case StateOpen:
			return
		}
	}
}

// recordFailure opens the circuit when the failure threshold is reached;
// any half-open failure reopens it immediately.
func (cb *circuitBreaker) recordFailure() {
	cb.lastFailureTime.Store(time.Now().UnixNano())

	for {
		state := cb.state.Load()
		switch CircuitState(state) {
		case StateClosed:
			failures := cb.failures.Add(1)
			if int(failures) >= cb.failureThreshold {
				if cb.state.CompareAndSwap(state, int32(StateOpen)) {
					cb.failures.Store(0)
					cb.successes.Store(0)
					slog.Info("circuit breaker state transition",
						"from", StateClosed.String(),
						"to", StateOpen.String())
					return
				}
				continue
			}
			return

		case StateHalfOpen:
			if cb.state.CompareAndSwap(state, int32(StateOpen)) {
				cb.failures.Store(0)
				cb.successes.Store(0)
				cb.halfOpenProbes.Store(0)
				slog.Info("circuit breaker state transition",
					"from", StateHalfOpen.String(),
					"to", StateOpen.String())
				return
			}
			continue

		case StateOpen:
			return
		}
	}
}

// transitionTo changes the breaker state and resets counters.
func (cb *circuitBreaker) transitionTo(newState CircuitState) {
	oldState := CircuitState(cb.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}

	cb.successes.Store(0)
	cb.halfOpenProbes.Store(0)
	if newState != StateHalfOpen {
		cb.failures.Store(0)
	}

	slog.Info("circuit breaker state transition",
		"from", oldState.String(),
		"to", newState.String())
}
