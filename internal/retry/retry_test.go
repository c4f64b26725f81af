package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/faculty-harvest/internal/retry"
)

var errTransient = errors.New("transient")

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	cfg := retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond}

	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	errFatal := errors.New("fatal")
	attempts := 0

	cfg := retry.Config{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		IsRetryable: func(err error) bool {
			return !errors.Is(err, errFatal)
		},
	}

	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		attempts++
		return errFatal
	})

	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsBudget(t *testing.T) {
	attempts := 0
	cfg := retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond}

	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		attempts++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond}

	err := retry.Do(ctx, cfg, func(context.Context) error {
		return errTransient
	})

	assert.Error(t, err)
}
