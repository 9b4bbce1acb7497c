package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LittleAndi/AndiBanterBot/internal/platform/retry"
)

var fastPolicy = retry.Policy{
	MaxAttempts:      4,
	InitialBackoff:   time.Millisecond,
	MaxBackoff:       2 * time.Millisecond,
	RateLimitBackoff: 5 * time.Millisecond,
}

func always(a retry.Action) retry.Classify {
	return func(error) retry.Action { return a }
}

func TestDo_ReturnsValueAfterTransientFailures(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, always(retry.Retry), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "match", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "match", val)
	assert.Equal(t, 3, calls)
}

func TestDo_StopIsPermanent(t *testing.T) {
	notFound := errors.New("not found")
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy, always(retry.Stop), func(context.Context) (int, error) {
		calls++
		return 0, notFound
	})

	_, ok := errors.AsType[*retry.PermanentError](err)
	assert.True(t, ok)
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, 1, calls)
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, always(retry.Retry), func(context.Context) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 4 attempts")
	assert.Equal(t, 4, calls)
}

func TestDo_BackoffDoublesAndIsCapped(t *testing.T) {
	var waits []time.Duration
	p := fastPolicy
	p.OnRetry = func(_ int, _ error, backoff time.Duration) { waits = append(waits, backoff) }

	_ = retry.DoVoid(context.Background(), p, always(retry.Retry), func(context.Context) error {
		return errors.New("boom")
	})

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDo_RateLimitUsesLongerBackoff(t *testing.T) {
	var waits []time.Duration
	p := fastPolicy
	p.MaxAttempts = 2
	p.OnRetry = func(_ int, _ error, backoff time.Duration) { waits = append(waits, backoff) }

	_ = retry.DoVoid(context.Background(), p, always(retry.After), func(context.Context) error {
		return errors.New("429")
	})

	assert.Equal(t, []time.Duration{5 * time.Millisecond}, waits)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Hour}
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	err := retry.DoVoid(ctx, p, always(retry.Retry), func(context.Context) error {
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_RejectsEmptyPolicy(t *testing.T) {
	_, err := retry.Do(context.Background(), retry.Policy{}, always(retry.Retry), func(context.Context) (int, error) {
		return 1, nil
	})
	assert.Error(t, err)
}
