package retrier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/playtag/retrier"
)

var policy = retrier.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestDoRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	var calls int
	err := retrier.Do(t.Context(), policy, func(_ context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if calls < 3 {
			return retrier.Transient(errors.New("flaky"))
		}

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAfterBudget(t *testing.T) {
	t.Parallel()

	flaky := errors.New("flaky")

	var calls int
	err := retrier.Do(t.Context(), policy, func(context.Context, int) error {
		calls++
		return retrier.Transient(flaky)
	})
	require.ErrorIs(t, err, flaky)
	assert.True(t, retrier.IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	permanent := errors.New("bad request")

	var calls int
	err := retrier.Do(t.Context(), policy, func(context.Context, int) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.False(t, retrier.IsTransient(err))
	assert.Equal(t, 1, calls)
}

func TestDoHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var calls int
	err := retrier.Do(ctx, policy, func(context.Context, int) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestTransientNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, retrier.Transient(nil))
}
