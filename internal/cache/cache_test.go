package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_HitSkipsRecomputation(t *testing.T) {
	t.Parallel()

	c := New(NewMemoryStore(), time.Hour, zap.NewNop())
	ctx := context.Background()

	var calls atomic.Int32
	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("result"), nil
	}

	v, hit, err := c.Do(ctx, "fp", compute)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, []byte("result"), v)

	v, hit, err = c.Do(ctx, "fp", compute)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, []byte("result"), v)
	require.Equal(t, int32(1), calls.Load())
}

func TestCache_ConcurrentCallersShareOneComputation(t *testing.T) {
	t.Parallel()

	c := New(NewMemoryStore(), time.Hour, zap.NewNop())
	ctx := context.Background()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		close(started)
		<-release
		return []byte("slow"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.Do(ctx, "fp", compute)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load(), "siblings must share one computation")
	require.Equal(t, []byte("slow"), results[0])
	require.Equal(t, []byte("slow"), results[1])
}

func TestCache_ExpiredEntryRecomputes(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(NewMemoryStore(), time.Hour, zap.NewNop(), WithClock(clock))
	ctx := context.Background()

	var calls atomic.Int32
	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("v"), nil
	}

	_, _, err := c.Do(ctx, "fp", compute)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	_, hit, err := c.Do(ctx, "fp", compute)
	require.NoError(t, err)
	require.True(t, hit)

	clock.Advance(31 * time.Minute)
	_, hit, err = c.Do(ctx, "fp", compute)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, int32(2), calls.Load())
}

func TestCache_FailureIsNeverCached(t *testing.T) {
	t.Parallel()

	c := New(NewMemoryStore(), time.Hour, zap.NewNop())
	ctx := context.Background()

	var calls atomic.Int32
	compute := func(context.Context) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return []byte("ok"), nil
	}

	_, _, err := c.Do(ctx, "fp", compute)
	require.Error(t, err)

	v, hit, err := c.Do(ctx, "fp", compute)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, []byte("ok"), v)
	require.Equal(t, int32(2), calls.Load())
}
