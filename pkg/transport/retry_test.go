package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		var retries []int
		err := Retry(context.Background(), cfg, func(attempt int) error {
			if attempt < 3 {
				return errFlaky
			}
			return nil
		}, func(attempt int, _ error) { retries = append(retries, attempt) })

		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, retries)
	})

	t.Run("permanent stops immediately", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, func(int) error {
			calls++
			return Permanent(errFlaky)
		}, nil)

		require.ErrorIs(t, err, errFlaky)
		assert.True(t, IsPermanent(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, func(int) error {
			calls++
			return errFlaky
		}, nil)

		require.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 4, calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := Retry(ctx, cfg, func(int) error { return errFlaky }, nil)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
