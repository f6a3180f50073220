package notification

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/floranet-go/internal/testutil"
)

func newTestCircuitBreaker(t *testing.T, maxFailures int, timeout time.Duration) *CircuitBreaker {
	t.Helper()
	return NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: maxFailures, Timeout: timeout}, testutil.QuietLogger())
}

func fail(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	t.Parallel()
	cb := newTestCircuitBreaker(t, 3, time.Minute)

	for i := range 5 {
		require.NoError(t, cb.Call(t.Context(), fail(nil)), "call %d", i)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	t.Parallel()
	cb := newTestCircuitBreaker(t, 3, time.Minute)
	testErr := errors.New("service down")

	for range 2 {
		require.ErrorIs(t, cb.Call(t.Context(), fail(testErr)), testErr)
		assert.Equal(t, StateClosed, cb.State())
	}
	require.ErrorIs(t, cb.Call(t.Context(), fail(testErr)), testErr)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(t.Context(), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open circuit must not call through")
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()
	cb := newTestCircuitBreaker(t, 1, time.Minute)

	require.ErrorIs(t, cb.Call(t.Context(), fail(context.Canceled)), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		cb := newTestCircuitBreaker(t, 1, 30*time.Second)
		require.Error(t, cb.Call(t.Context(), fail(errors.New("down"))))
		require.Equal(t, StateOpen, cb.State())

		time.Sleep(31 * time.Second)

		require.NoError(t, cb.Call(t.Context(), fail(nil)))
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		cb := newTestCircuitBreaker(t, 2, 30*time.Second)
		for range 2 {
			require.Error(t, cb.Call(t.Context(), fail(errors.New("down"))))
		}
		require.Equal(t, StateOpen, cb.State())

		time.Sleep(31 * time.Second)

		// A single failed probe reopens the circuit
		require.Error(t, cb.Call(t.Context(), fail(errors.New("still down"))))
		assert.Equal(t, StateOpen, cb.State())
		require.ErrorIs(t, cb.Call(t.Context(), fail(nil)), ErrCircuitOpen)
	})
}

func TestCircuitStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}
