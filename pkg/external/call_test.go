package external

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429 retries", &StatusError{Status: 429}, true},
		{"500 retries", &StatusError{Status: 500}, true},
		{"503 retries", &StatusError{Status: 503}, true},
		{"400 does not", &StatusError{Status: 400}, false},
		{"404 does not", &StatusError{Status: 404}, false},
		{"transport error retries", errors.New("connection reset"), true},
		{"wrapped status unwraps", errors.Join(errors.New("get"), &StatusError{Status: 404}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryableStatus(tt.err))
		})
	}
}

func TestCallWithRetrySucceedsAfterRetry(t *testing.T) {
	calls := 0
	err := CallWithRetry(context.Background(), Policy{
		Name:       "test",
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Status: 500}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCallWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := CallWithRetry(context.Background(), Policy{
		Name:       "test",
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Retryable:  RetryableStatus,
	}, func(ctx context.Context) error {
		calls++
		return &StatusError{Status: 400}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.Status)
}

func TestCallWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := CallWithRetry(context.Background(), Policy{
		Name:       "test",
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		return errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestCallWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := CallWithRetry(ctx, Policy{
		Name:       "test",
		MaxRetries: 5,
		BaseDelay:  10 * time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("failing")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCallWithRetryAppliesAttemptTimeout(t *testing.T) {
	err := CallWithRetry(context.Background(), Policy{
		Name:       "test",
		Timeout:    10 * time.Millisecond,
		MaxRetries: 0,
	}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
