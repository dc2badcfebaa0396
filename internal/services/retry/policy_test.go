package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: time.Millisecond}
}

func TestPolicy_SucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	attempts, err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	attempts, err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestPolicy_StopsOnPermanentError(t *testing.T) {
	calls := 0
	attempts, err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errTransient)
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_CustomClassifier(t *testing.T) {
	p := fastPolicy()
	p.Retryable = func(error) bool { return false }

	attempts, err := p.Do(context.Background(), func(context.Context) error { return errTransient })

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_WaitsFixedDelay(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: 20 * time.Millisecond}
	start := time.Now()

	_, err := p.Do(context.Background(), func(context.Context) error { return errTransient })

	assert.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay)
	assert.False(t, DefaultRetryable(context.Canceled))
	assert.True(t, DefaultRetryable(errTransient))
}
