package resilience_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/routenav/internal/provider/resilience"
)

func fastConfig(name string) resilience.GuardConfig {
	cfg := resilience.DefaultGuardConfig(name)
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return cfg
}

func TestGuard_Success(t *testing.T) {
	guard := resilience.NewGuard(fastConfig("test"))

	var calls atomic.Int32
	err := guard.Do(context.Background(), func(ctx context.Context) error {
		calls.Add(1)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "each attempt should carry a timeout")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, gobreaker.StateClosed, guard.CircuitBreakerState())
}

func TestGuard_RetriesTransientFailures(t *testing.T) {
	cfg := fastConfig("test-retry")
	cfg.MaxRetries = 5
	guard := resilience.NewGuard(cfg)

	var calls atomic.Int32
	err := guard.Do(context.Background(), func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("temporarily unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "should have retried until success")
}

func TestGuard_GivesUpAfterMaxRetries(t *testing.T) {
	cfg := fastConfig("test-exhaust")
	cfg.MaxRetries = 2
	guard := resilience.NewGuard(cfg)

	var calls atomic.Int32
	err := guard.Do(context.Background(), func(context.Context) error {
		calls.Add(1)
		return assert.AnError
	})

	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
}

func TestGuard_PermanentErrorIsNotRetried(t *testing.T) {
	guard := resilience.NewGuard(fastConfig("test-permanent"))

	var calls atomic.Int32
	err := guard.Do(context.Background(), func(context.Context) error {
		calls.Add(1)
		return resilience.Permanent(assert.AnError)
	})

	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGuard_CircuitBreakerTrips(t *testing.T) {
	cfg := fastConfig("test-trip")
	cfg.MaxRetries = 1
	cbConfig := resilience.DefaultCircuitBreakerConfig("test-trip")
	cbConfig.Timeout = time.Hour
	cfg.CircuitBreaker = &cbConfig
	guard := resilience.NewGuard(cfg)

	var calls atomic.Int32
	failing := func(context.Context) error {
		calls.Add(1)
		return assert.AnError
	}

	// Five consecutive failures trip the breaker.
	for i := 0; i < 3; i++ {
		_ = guard.Do(context.Background(), failing)
	}
	assert.Equal(t, gobreaker.StateOpen, guard.CircuitBreakerState())

	before := calls.Load()
	err := guard.Do(context.Background(), failing)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, calls.Load(), "open circuit should not call the operation")
}

func TestGuard_ContextCancelled(t *testing.T) {
	cfg := fastConfig("test-cancel")
	cfg.InitialInterval = time.Second
	cfg.MaxInterval = time.Second
	guard := resilience.NewGuard(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	err := guard.Do(ctx, func(context.Context) error {
		cancel()
		return assert.AnError
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestGuard_RecordsHealth(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := fastConfig("test-health")
	cfg.MaxRetries = 1
	cfg.Registry = registry
	guard := resilience.NewGuard(cfg)

	require.NoError(t, guard.Do(context.Background(), func(context.Context) error { return nil }))
	health := registry.GetHealth("test-health")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	require.Error(t, guard.Do(context.Background(), func(context.Context) error { return assert.AnError }))
	health = registry.GetHealth("test-health")
	require.NotNil(t, health.LastFailureAt)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{name: "no calls", counts: gobreaker.Counts{}, expected: false},
		{name: "consecutive failures", counts: gobreaker.Counts{Requests: 5, TotalFailures: 5, ConsecutiveFailures: 5}, expected: true},
		{name: "few scattered failures", counts: gobreaker.Counts{Requests: 8, TotalFailures: 4, ConsecutiveFailures: 1}, expected: false},
		{name: "high failure rate", counts: gobreaker.Counts{Requests: 10, TotalFailures: 5, ConsecutiveFailures: 1}, expected: true},
		{name: "low failure rate", counts: gobreaker.Counts{Requests: 20, TotalFailures: 4, ConsecutiveFailures: 1}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}
