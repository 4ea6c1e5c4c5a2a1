package backoff_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewire/notifyhub/pkg/backoff"
)

func TestConfigDelay(t *testing.T) {
	t.Parallel()

	cfg := backoff.Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
	}

	tests := []struct {
		name    string
		attempt int
		base    time.Duration
	}{
		{name: "first retry", attempt: 0, base: time.Second},
		{name: "second retry", attempt: 1, base: 2 * time.Second},
		{name: "third retry", attempt: 2, base: 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// Jitter is ±10%, so every sample must land inside the band.
			for range 20 {
				got := cfg.Delay(tt.attempt)
				assert.GreaterOrEqual(t, got, time.Duration(float64(tt.base)*0.9), "attempt %d", tt.attempt)
				assert.LessOrEqual(t, got, time.Duration(float64(tt.base)*1.1), "attempt %d", tt.attempt)
			}
		})
	}
}

func TestConfigDelayCappedAtMax(t *testing.T) {
	t.Parallel()

	cfg := backoff.Config{
		MaxRetries:   10,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}

	// 1s * 2^6 = 64s base, capped to 5s before jitter is applied.
	for range 20 {
		got := cfg.Delay(6)
		assert.GreaterOrEqual(t, got, time.Duration(float64(5*time.Second)*0.9))
		assert.LessOrEqual(t, got, time.Duration(float64(5*time.Second)*1.1))
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "connection refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, want: true},
		{name: "wrapped connection refused", err: fmt.Errorf("send: %w", syscall.ECONNREFUSED), want: true},
		{name: "dns not found", err: &net.DNSError{Err: "no such host", Name: "gateway.example.com", IsNotFound: true}, want: true},
		{name: "dns timeout", err: &net.DNSError{Err: "i/o timeout", Name: "gateway.example.com", IsTimeout: true}, want: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "wrapped deadline exceeded", err: fmt.Errorf("call gateway: %w", context.DeadlineExceeded), want: true},
		{name: "rate limited sentinel", err: backoff.ErrRateLimited, want: true},
		{name: "wrapped rate limited", err: fmt.Errorf("sms gateway: %w", backoff.ErrRateLimited), want: true},
		{name: "status 429", err: &backoff.StatusError{Code: 429, Msg: "too many requests"}, want: true},
		{name: "status 503", err: &backoff.StatusError{Code: 503, Msg: "service unavailable"}, want: true},
		{name: "status 504", err: &backoff.StatusError{Code: 504, Msg: "gateway timeout"}, want: true},
		{name: "status 400", err: &backoff.StatusError{Code: 400, Msg: "bad request"}, want: false},
		{name: "status 401", err: &backoff.StatusError{Code: 401, Msg: "unauthorized"}, want: false},
		{name: "status 500", err: &backoff.StatusError{Code: 500, Msg: "internal error"}, want: false},
		{name: "validation error", err: errors.New("invalid recipient"), want: false},
		{name: "context canceled", err: context.Canceled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, backoff.Retryable(tt.err))
		})
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	cfg := backoff.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	calls := 0
	err := backoff.Do(context.Background(), cfg, "deliver email", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &backoff.StatusError{Code: 503, Msg: "unavailable"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoPermanentErrorShortCircuits(t *testing.T) {
	t.Parallel()

	cfg := backoff.Config{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}

	permanent := errors.New("invalid recipient address")
	calls := 0
	start := time.Now()
	err := backoff.Do(context.Background(), cfg, "deliver email", func(ctx context.Context) error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	// Permanent errors must not pay the 1s initial delay.
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	var exhausted *backoff.ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	cfg := backoff.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	cause := &backoff.StatusError{Code: 503, Msg: "unavailable"}
	calls := 0
	err := backoff.Do(context.Background(), cfg, "deliver sms", func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "initial attempt plus MaxRetries retries")

	var exhausted *backoff.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "deliver sms")
}

func TestDoContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	cfg := backoff.Config{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	calls := 0
	err := backoff.Do(ctx, cfg, "deliver push", func(ctx context.Context) error {
		calls++
		return &backoff.StatusError{Code: 503, Msg: "unavailable"}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
