package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{Attempts: 3, Delay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_StopsAfterAttemptBudget(t *testing.T) {
	p := Policy{Attempts: 3, Delay: time.Millisecond}

	calls := 0
	wantErr := errors.New("still broken")
	err := p.Do(context.Background(), func() error {
		calls++
		return wantErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls, "budget is total attempts, including the first")
}

func TestPolicy_ZeroAttemptsStillRunsOnce(t *testing.T) {
	p := Policy{Delay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_RespectsCancelledContext(t *testing.T) {
	p := Policy{Attempts: 50, Delay: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2, "a cancelled context must stop the retry loop early")
}
