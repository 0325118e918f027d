package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 2, time.Millisecond, func(ctx context.Context) error {
			calls++
			return errors.New("down")
		})
		assert.EqualError(t, err, "down")
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent stops immediately", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 5, time.Millisecond, func(ctx context.Context) error {
			calls++
			return Permanent(errors.New("bad payload"))
		})
		assert.True(t, IsPermanent(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := Retry(cctx, 3, time.Hour, func(ctx context.Context) error {
			return errors.New("down")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
}
