package memory

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenMatches(t *testing.T) {
	seen := NewSeenMatches()
	ctx := t.Context()

	require.NoError(t, seen.Seed(ctx, "account.x", []string{"m-1"}))

	isNew, err := seen.MarkSeen(ctx, "account.x", "m-1")
	require.NoError(t, err)
	assert.False(t, isNew)

	isNew, err = seen.MarkSeen(ctx, "account.x", "m-2")
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = seen.MarkSeen(ctx, "account.y", "m-1")
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestSeenMatches_ConcurrentMarkSeenAnnouncesOnce(t *testing.T) {
	seen := NewSeenMatches()
	var fresh atomic.Int32

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			if isNew, _ := seen.MarkSeen(t.Context(), "account.x", "m-1"); isNew {
				fresh.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh.Load())
}
