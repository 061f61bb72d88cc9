package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetriesRetryableThenSucceeds(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffMultiplier: 2}

	attempts := 0
	result, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("503 service unavailable")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestDoFailsFastOnNonRetryable(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2}

	attempts := 0
	_, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("400 bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2}

	attempts := 0
	_, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestOptimisticLockBackoffSchedule(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, OptimisticLockBackoff(1))
	assert.Equal(t, 200*time.Millisecond, OptimisticLockBackoff(2))
	assert.Equal(t, 300*time.Millisecond, OptimisticLockBackoff(3))
}
