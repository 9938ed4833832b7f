package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPool_OrderAndBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	got, err := runPool(context.Background(), 3, items, func(_ context.Context, n int) int {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return n * n
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64}, got)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunPool_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	_, err := runPool(ctx, 2, []int{1, 2, 3}, func(context.Context, int) int {
		calls.Add(1)
		return 0
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestRunPool_Empty(t *testing.T) {
	got, err := runPool(context.Background(), 4, []string(nil), func(context.Context, string) int { return 1 })
	require.NoError(t, err)
	assert.Empty(t, got)
}
