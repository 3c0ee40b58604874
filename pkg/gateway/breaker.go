package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/faaslocal/platform/pkg/metrics"
	"github.com/faaslocal/platform/pkg/types"
)

// ErrBreakerOpen is returned by Breaker.Allow when the circuit is open
// and the reset timeout has not yet elapsed.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerConfig controls one function's breaker.
type BreakerConfig struct {
	MaxFailures int           // consecutive failures before opening
	ResetAfter  time.Duration // time spent open before a half-open probe is allowed
}

// DefaultBreakerConfig returns the emulator's defaults: 5 consecutive
// failures, 30s before the next probe.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, ResetAfter: 30 * time.Second}
}

// Breaker is a three-state circuit breaker scoped to a single function.
// Unlike a general-purpose breaker, half-open here allows exactly one
// probe at a time -- the probe's outcome alone decides the next state,
// with no majority vote across a window of half-open attempts.
type Breaker struct {
	mu           sync.Mutex
	cfg          BreakerConfig
	functionName string
	state        types.BreakerState
	failures     int
	openedAt     time.Time
	probing      bool
}

// NewBreaker constructs a Breaker in the closed state.
func NewBreaker(functionName string, cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = 30 * time.Second
	}
	b := &Breaker{cfg: cfg, functionName: functionName, state: types.BreakerClosed}
	b.reportState()
	return b
}

// Allow reports whether a call may proceed, reserving the single
// half-open probe slot if the circuit has just become eligible to
// retry.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.BreakerOpen:
		if time.Since(b.openedAt) < b.cfg.ResetAfter {
			return ErrBreakerOpen
		}
		b.setState(types.BreakerHalfOpen)
		b.probing = true
		return nil
	case types.BreakerHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Report records the outcome of a call that Allow permitted.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.BreakerHalfOpen:
		b.probing = false
		if success {
			b.setState(types.BreakerClosed)
		} else {
			b.setState(types.BreakerOpen)
		}
	case types.BreakerClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.setState(types.BreakerOpen)
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() types.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) setState(s types.BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	b.failures = 0
	if s == types.BreakerOpen {
		b.openedAt = time.Now()
	}
	b.reportState()
}

func (b *Breaker) reportState() {
	var v float64
	switch b.state {
	case types.BreakerOpen:
		v = 1
	case types.BreakerHalfOpen:
		v = 2
	}
	metrics.BreakerState.WithLabelValues(b.functionName).Set(v)
}
