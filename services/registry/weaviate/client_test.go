// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weaviate

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// ClientConfig Tests
// -----------------------------------------------------------------------------

func TestClientConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.URL = "http://localhost:8080"
		err := cfg.Validate()
		assert.NoError(t, err)
	})

	t.Run("missing url", func(t *testing.T) {
		cfg := DefaultClientConfig()
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "url")
	})

	t.Run("negative retry_attempts", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.URL = "http://localhost:8080"
		cfg.RetryAttempts = -1
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "retry_attempts")
	})

	t.Run("invalid retry_jitter", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.URL = "http://localhost:8080"
		cfg.RetryJitter = 1.5
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "retry_jitter")
	})

	t.Run("zero circuit_threshold", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.URL = "http://localhost:8080"
		cfg.CircuitThreshold = 0
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "circuit_threshold")
	})
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxRetryBackoff)
	assert.Equal(t, 0.25, cfg.RetryJitter)
	assert.Equal(t, 5, cfg.CircuitThreshold)
	assert.Equal(t, 30*time.Second, cfg.CircuitWindow)
	assert.Equal(t, 30*time.Second, cfg.CircuitCooldown)
	assert.Equal(t, 10*time.Second, cfg.HealthCheckInterval)
	assert.Equal(t, 5*time.Second, cfg.DegradedCheckInterval)
	assert.Equal(t, 5*time.Second, cfg.HealthCheckTimeout)
	assert.False(t, cfg.AllowStartDegraded)
}

// -----------------------------------------------------------------------------
// ConnectionState Tests
// -----------------------------------------------------------------------------

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{StateConnected, "connected"},
		{StateDegraded, "degraded"},
		{StateCircuitOpen, "circuit_open"},
		{StateHalfOpen, "half_open"},
		{ConnectionState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

// -----------------------------------------------------------------------------
// ResilientClient Tests (Unit tests without actual Weaviate)
// -----------------------------------------------------------------------------

func TestNewResilientClient_InvalidConfig(t *testing.T) {
	cfg := ClientConfig{} // Missing URL
	_, err := NewResilientClient(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestNewResilientClient_StrictMode(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.URL = "http://localhost:9" // Nothing listens here
	cfg.AllowStartDegraded = false
	cfg.HealthCheckTimeout = 100 * time.Millisecond

	_, err := NewResilientClient(cfg)
	assert.Error(t, err)
}

func TestNewResilientClient_AllowStartDegraded(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.URL = "http://localhost:9" // Nothing listens here
	cfg.AllowStartDegraded = true
	cfg.HealthCheckTimeout = 100 * time.Millisecond

	client, err := NewResilientClient(cfg)
	if err != nil {
		// Client construction itself failed, acceptable in unit tests.
		t.Logf("client creation failed: %v", err)
		return
	}
	defer client.Close()
	assert.True(t, client.IsDegraded())
	assert.False(t, client.IsAvailable())
}

// -----------------------------------------------------------------------------
// Circuit Breaker Tests
// -----------------------------------------------------------------------------

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			CircuitThreshold: 3,
			CircuitWindow:    30 * time.Second,
			CircuitCooldown:  1 * time.Second,
		},
		failures: make([]time.Time, 3),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	for i := 0; i < 3; i++ {
		client.recordFailure()
	}

	assert.Equal(t, StateCircuitOpen, client.GetState())
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			CircuitThreshold: 3,
			CircuitWindow:    30 * time.Second,
			CircuitCooldown:  10 * time.Millisecond,
		},
		failures: make([]time.Time, 3),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateCircuitOpen))
	client.circuitOpenTime.Store(time.Now().Add(-20 * time.Millisecond).Unix())

	assert.True(t, client.shouldTryHalfOpen())
}

func TestCircuitBreaker_DoesNotOpenWithoutThreshold(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			CircuitThreshold: 5,
			CircuitWindow:    30 * time.Second,
		},
		failures: make([]time.Time, 5),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	for i := 0; i < 3; i++ {
		client.recordFailure()
	}

	assert.NotEqual(t, StateCircuitOpen, client.GetState())
	assert.Equal(t, StateDegraded, client.GetState())
}

func TestCircuitBreaker_SlidingWindow(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			CircuitThreshold: 3,
			CircuitWindow:    100 * time.Millisecond,
		},
		failures: make([]time.Time, 3),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	client.recordFailure()

	// Wait for the window to pass, old failure no longer counts
	time.Sleep(150 * time.Millisecond)

	client.recordFailure()
	client.recordFailure()

	assert.NotEqual(t, StateCircuitOpen, client.GetState())
}

func TestResetFailures_ClearsWindow(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			CircuitThreshold: 3,
			CircuitWindow:    30 * time.Second,
		},
		failures: make([]time.Time, 3),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	client.recordFailure()
	client.recordFailure()
	client.resetFailures()

	// Two more failures after the reset stay below the threshold
	client.recordFailure()
	client.recordFailure()

	assert.NotEqual(t, StateCircuitOpen, client.GetState())
}

// -----------------------------------------------------------------------------
// Execute Tests
// -----------------------------------------------------------------------------

func TestExecute_ClosedClient(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{RetryAttempts: 3},
		logger: slog.Default(),
	}
	client.closed.Store(true)

	err := client.Execute(context.Background(), func() error {
		t.Fatal("fn must not run on a closed client")
		return nil
	})
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestExecute_CircuitOpenFailsFast(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			RetryAttempts:   3,
			CircuitCooldown: time.Minute,
		},
		failures: make([]time.Time, 3),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateCircuitOpen))
	client.circuitOpenTime.Store(time.Now().Unix())

	var calls atomic.Int32
	err := client.Execute(context.Background(), func() error {
		calls.Add(1)
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(0), calls.Load())
}

func TestExecute_HalfOpenAllowsSingleProbe(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			RetryAttempts: 0,
		},
		failures: make([]time.Time, 3),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateHalfOpen))
	client.halfOpenTest.Store(true) // Probe slot already taken

	err := client.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestExecute_RetriesRetryableErrors(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			RetryAttempts:    3,
			RetryBackoff:     time.Millisecond,
			MaxRetryBackoff:  5 * time.Millisecond,
			CircuitThreshold: 10,
			CircuitWindow:    time.Minute,
		},
		failures: make([]time.Time, 10),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	var calls atomic.Int32
	err := client.Execute(context.Background(), func() error {
		if calls.Add(1) < 3 {
			return context.DeadlineExceeded
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_NonRetryableFailsImmediately(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			RetryAttempts:    3,
			RetryBackoff:     time.Millisecond,
			CircuitThreshold: 10,
			CircuitWindow:    time.Minute,
		},
		failures: make([]time.Time, 10),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	appErr := errors.New("class not found")
	var calls atomic.Int32
	err := client.Execute(context.Background(), func() error {
		calls.Add(1)
		return appErr
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, appErr)
	assert.Equal(t, int32(1), calls.Load())
}

// -----------------------------------------------------------------------------
// Retry Tests
// -----------------------------------------------------------------------------

func TestCalculateBackoff_WithJitter(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			RetryBackoff:    100 * time.Millisecond,
			MaxRetryBackoff: 1 * time.Second,
			RetryJitter:     0.25,
		},
	}

	backoffs := make([]time.Duration, 10)
	for i := 0; i < 10; i++ {
		backoffs[i] = client.calculateBackoff(1)
	}

	expected := 200 * time.Millisecond // 100ms * 2^1
	minExpected := time.Duration(float64(expected) * 0.75)
	maxExpected := time.Duration(float64(expected) * 1.25)

	for _, b := range backoffs {
		assert.GreaterOrEqual(t, b, minExpected)
		assert.LessOrEqual(t, b, maxExpected)
	}

	allSame := true
	for i := 1; i < len(backoffs); i++ {
		if backoffs[i] != backoffs[0] {
			allSame = false
			break
		}
	}
	assert.False(t, allSame, "jitter should produce some variation")
}

func TestCalculateBackoff_CapsAtMax(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			RetryBackoff:    100 * time.Millisecond,
			MaxRetryBackoff: 500 * time.Millisecond,
			RetryJitter:     0,
		},
	}

	backoff := client.calculateBackoff(10) // 100ms * 2^10 would be 102.4s

	assert.LessOrEqual(t, backoff, client.config.MaxRetryBackoff)
}

// -----------------------------------------------------------------------------
// Error Categorization Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"context cancelled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"application error", errors.New("invalid filter"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryable(tt.err))
		})
	}
}

func TestIsRetryable_NetworkErrors(t *testing.T) {
	t.Run("net.OpError is retryable", func(t *testing.T) {
		netErr := &net.OpError{
			Op:  "dial",
			Net: "tcp",
			Err: errors.New("connection refused"),
		}
		assert.True(t, isRetryable(netErr))
	})

	t.Run("timeout error is retryable", func(t *testing.T) {
		netErr := &net.OpError{
			Op:  "read",
			Net: "tcp",
			Err: &timeoutError{},
		}
		assert.True(t, isRetryable(netErr))
	})
}

// timeoutError implements net.Error with Timeout() = true
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func TestWrapWeaviateError(t *testing.T) {
	t.Run("deadline exceeded", func(t *testing.T) {
		wrapped := WrapWeaviateError(context.DeadlineExceeded)
		assert.ErrorIs(t, wrapped, ErrConnectionTimeout)
	})

	t.Run("nil error", func(t *testing.T) {
		wrapped := WrapWeaviateError(nil)
		assert.Nil(t, wrapped)
	})

	t.Run("other error", func(t *testing.T) {
		wrapped := WrapWeaviateError(errors.New("some error"))
		assert.Contains(t, wrapped.Error(), "weaviate error")
	})
}

// -----------------------------------------------------------------------------
// State Transition Tests
// -----------------------------------------------------------------------------

func TestTransitionState_NotifiesHandlers(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{},
		logger: slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	handler := &mockDegradationHandler{}
	client.RegisterHandler(handler)

	client.transitionState(StateDegraded)

	assert.Equal(t, int32(1), handler.degradedCalls.Load())
	assert.Equal(t, int32(0), handler.recoveredCalls.Load())

	client.transitionState(StateConnected)

	assert.Equal(t, int32(1), handler.degradedCalls.Load())
	assert.Equal(t, int32(1), handler.recoveredCalls.Load())
}

func TestTransitionState_NoOpForSameState(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{},
		logger: slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	handler := &mockDegradationHandler{}
	client.RegisterHandler(handler)

	client.transitionState(StateConnected)

	assert.Equal(t, int32(0), handler.degradedCalls.Load())
	assert.Equal(t, int32(0), handler.recoveredCalls.Load())
}

func TestTransitionState_HalfOpenNotifiesRecovery(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{},
		logger: slog.Default(),
	}
	client.state.Store(int32(StateCircuitOpen))

	handler := &mockDegradationHandler{}
	client.RegisterHandler(handler)
	// Registration on a degraded client notifies immediately
	require.Equal(t, int32(1), handler.degradedCalls.Load())

	client.transitionState(StateHalfOpen)

	assert.Equal(t, int32(1), handler.recoveredCalls.Load(),
		"half-open counts as available for notification purposes")
}

func TestRegisterHandler_NotifiesWhenAlreadyDegraded(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{},
		logger: slog.Default(),
	}
	client.state.Store(int32(StateDegraded))

	handler := &mockDegradationHandler{}
	client.RegisterHandler(handler)

	assert.Equal(t, int32(1), handler.degradedCalls.Load())
	assert.Equal(t, ModeDegraded, handler.GetMode())
}

// -----------------------------------------------------------------------------
// Close Tests
// -----------------------------------------------------------------------------

func TestClose_Idempotent(t *testing.T) {
	client := &ResilientClient{
		logger: slog.Default(),
	}
	healthCtx, healthCancel := context.WithCancel(context.Background())
	client.healthCtx = healthCtx
	client.healthCancel = healthCancel

	err1 := client.Close()
	err2 := client.Close()

	assert.NoError(t, err1)
	assert.NoError(t, err2)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

type mockDegradationHandler struct {
	degradedCalls  atomic.Int32
	recoveredCalls atomic.Int32
	mode           atomic.Int32
}

func (m *mockDegradationHandler) OnDegraded(reason string) {
	m.degradedCalls.Add(1)
	m.mode.Store(int32(ModeDegraded))
}

func (m *mockDegradationHandler) OnRecovered() {
	m.recoveredCalls.Add(1)
	m.mode.Store(int32(ModeNormal))
}

func (m *mockDegradationHandler) GetMode() DegradationMode {
	return DegradationMode(m.mode.Load())
}

// -----------------------------------------------------------------------------
// Integration Tests (require actual Weaviate)
// -----------------------------------------------------------------------------

func TestIntegration_HealthCheck(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := DefaultClientConfig()
	cfg.URL = "http://localhost:8080"
	cfg.AllowStartDegraded = true

	client, err := NewResilientClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	t.Logf("client state: %s", client.GetState())
}

func TestIntegration_Execute(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := DefaultClientConfig()
	cfg.URL = "http://localhost:8080"
	cfg.AllowStartDegraded = true

	client, err := NewResilientClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	if !client.IsAvailable() {
		t.Skip("weaviate not available")
	}

	err = client.Execute(context.Background(), func() error {
		_, err := client.Client().Misc().ReadyChecker().Do(context.Background())
		return err
	})
	assert.NoError(t, err)
}
