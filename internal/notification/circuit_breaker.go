package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed means requests flow normally.
	StateClosed CircuitState = iota
	// StateHalfOpen means one probe request is allowed through.
	StateHalfOpen
	// StateOpen means requests are rejected until the timeout passes.
	StateOpen
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.NewStd("circuit breaker is open")

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	MaxFailures int
	// Timeout is how long the circuit stays open before a probe.
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns default circuit breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
	}
}

// CircuitBreaker stops sending to a notification service that keeps failing
// and lets a single probe through after Timeout.
type CircuitBreaker struct {
	config          CircuitBreakerConfig
	mu              sync.Mutex
	state           CircuitState
	failures        int
	lastStateChange time.Time
	probing         bool
	log             logger.Logger
}

// NewCircuitBreaker creates a closed CircuitBreaker.
func NewCircuitBreaker(config CircuitBreakerConfig, log logger.Logger) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.MaxFailures < 1 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if log == nil {
		log = logger.Global().Module("notification")
	}
	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
		log:             log,
	}
}

// Call runs fn when the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterCall(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.probing = true
			return nil
		}
	case StateHalfOpen:
		if !cb.probing {
			cb.probing = true
			return nil
		}
	}
	return fmt.Errorf("%w (%d consecutive failures)", ErrCircuitOpen, cb.failures)
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false

	if err == nil {
		cb.failures = 0
		cb.setState(StateClosed)
		return
	}

	// Our own cancellation says nothing about the service
	if errors.Is(err, context.Canceled) {
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(next CircuitState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.lastStateChange = time.Now()
	cb.log.Info("circuit breaker state transition",
		logger.String("old_state", prev.String()),
		logger.String("new_state", next.String()),
		logger.Int("consecutive_failures", cb.failures))
}
