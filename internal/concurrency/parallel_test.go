package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapKeepsOrder(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7}
	out := Map(context.Background(), in, Options{Workers: 3}, func(ctx context.Context, i, item int) (int, error) {
		if item%3 == 0 {
			return 0, errors.New("multiple of three")
		}
		return item * 10, nil
	})

	require.Len(t, out, len(in))
	assert.Equal(t, 10, out[0].Value)
	assert.Equal(t, 70, out[6].Value)
	assert.Error(t, out[2].Err)
	assert.Len(t, Errors(out), 2)
}

func TestMapBoundsWorkers(t *testing.T) {
	var running, peak int32
	in := make([]int, 20)
	Map(context.Background(), in, Options{Workers: 2}, func(ctx context.Context, i, item int) (struct{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		atomic.AddInt32(&running, -1)
		return struct{}{}, nil
	})
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestMapCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := Map(ctx, []string{"a", "b"}, Options{}, func(ctx context.Context, i int, s string) (string, error) {
		return s, nil
	})
	for _, o := range out {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestMapEmpty(t *testing.T) {
	out := Map(context.Background(), []int(nil), Options{}, func(ctx context.Context, i, item int) (int, error) {
		return item, nil
	})
	assert.Empty(t, out)
}
