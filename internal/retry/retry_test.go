package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	}, Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Config{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return boom
	}, Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func() error {
		return errors.New("transient")
	}, Config{MaxAttempts: 3, InitialBackoff: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffCap(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0, time.Second, 10*time.Second))
	assert.Equal(t, 4*time.Second, backoff(2, time.Second, 10*time.Second))
	assert.Equal(t, 10*time.Second, backoff(6, time.Second, 10*time.Second))
	// overflow guard
	assert.Equal(t, 10*time.Second, backoff(62, time.Second, 10*time.Second))
}
