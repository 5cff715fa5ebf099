package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("snapshot version changed")

func fast(attempts int, retryIf func(error) bool) *Retrier {
	return New(Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, ShouldRetry: retryIf})
}

func TestRetrier_RetriesMarkedErrors(t *testing.T) {
	calls := 0
	err := fast(5, nil).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errConflict)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_UnmarkedErrorsAreFinal(t *testing.T) {
	calls := 0
	err := fast(5, nil).Do(context.Background(), func(context.Context) error {
		calls++
		return errConflict
	})

	assert.Equal(t, errConflict, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_PermanentBeatsPredicate(t *testing.T) {
	calls := 0
	err := fast(5, func(error) bool { return true }).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errConflict)
	})

	assert.Equal(t, errConflict, err)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestRetrier_ExhaustionReturnsUnmarkedError(t *testing.T) {
	calls := 0
	err := fast(3, nil).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errConflict)
	})

	assert.Equal(t, errConflict, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 3, calls)
}

func TestPersistenceRetrier_UsesPredicate(t *testing.T) {
	calls := 0
	r := PersistenceRetrier(func(err error) bool { return errors.Is(err, errConflict) })

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errConflict
	})

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, r.Attempts(), calls)
}

func TestRetrier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := fast(3, nil).Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestBackoff_DoublesUpToCap(t *testing.T) {
	r := New(Policy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond})

	assert.Equal(t, 10*time.Millisecond, r.backoff(1))
	assert.Equal(t, 20*time.Millisecond, r.backoff(2))
	assert.Equal(t, 35*time.Millisecond, r.backoff(3))
	assert.Equal(t, 35*time.Millisecond, r.backoff(8))
}

func TestNew_Normalises(t *testing.T) {
	r := New(Policy{MaxAttempts: 0, Jitter: 3})
	assert.Equal(t, 1, r.Attempts())
	assert.Zero(t, r.policy.Jitter)
}
