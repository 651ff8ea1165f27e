package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/tourbook/internal/testutil"
)

func counting(values ...string) (Fetcher[string], *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context, string) (string, error) {
		n := calls.Add(1)
		if int(n) <= len(values) {
			return values[n-1], nil
		}
		return values[len(values)-1], nil
	}, &calls
}

func TestCache_FreshStaleExpired(t *testing.T) {
	clock := testutil.NewManualClock(testutil.TestTime())
	c := New[string](Options{StaleTime: 5 * time.Minute, CacheTime: 10 * time.Minute, Now: clock.Now})
	fetch, calls := counting("v1", "v2", "v3")
	ctx := context.Background()

	v, src, err := c.Get(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, SourceFetch, src)

	clock.Advance(time.Minute)
	v, src, _ = c.Get(ctx, "k", fetch)
	assert.Equal(t, "v1", v)
	assert.Equal(t, SourceFresh, src)
	assert.EqualValues(t, 1, calls.Load())

	clock.Advance(5 * time.Minute)
	v, src, _ = c.Get(ctx, "k", fetch)
	assert.Equal(t, "v1", v, "stale value is served while refetching")
	assert.Equal(t, SourceStale, src)
	c.Wait()
	assert.EqualValues(t, 2, calls.Load())

	v, src, _ = c.Get(ctx, "k", fetch)
	assert.Equal(t, "v2", v)
	assert.Equal(t, SourceFresh, src)

	clock.Advance(11 * time.Minute)
	v, src, _ = c.Get(ctx, "k", fetch)
	assert.Equal(t, "v3", v)
	assert.Equal(t, SourceFetch, src)
}

func TestCache_DeduplicatesConcurrentFetches(t *testing.T) {
	c := New[string](Options{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context, string) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.Get(context.Background(), "k", fetch)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := New[string](Options{})
	boom := errors.New("backend down")
	var calls atomic.Int32
	fetch := func(context.Context, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", boom
		}
		return "ok", nil
	}

	_, _, err := c.Get(context.Background(), "k", fetch)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	v, _, err := c.Get(context.Background(), "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCache_InvalidateAndRefetch(t *testing.T) {
	c := New[string](Options{})
	fetch, calls := counting("customer", "admin", "admin")
	ctx := context.Background()

	v, _, _ := c.Get(ctx, "a@example.com", fetch)
	assert.Equal(t, "customer", v)

	c.Invalidate("a@example.com")
	_, ok := c.Peek("a@example.com")
	assert.False(t, ok)

	v, src, _ := c.Get(ctx, "a@example.com", fetch)
	assert.Equal(t, "admin", v)
	assert.Equal(t, SourceFetch, src)

	v, err := c.Refetch(ctx, "a@example.com", fetch)
	require.NoError(t, err)
	assert.Equal(t, "admin", v)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCache_InvalidateDuringFetchDoesNotRepopulate(t *testing.T) {
	c := New[string](Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context, string) (string, error) {
		close(started)
		<-release
		return "old", nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = c.Get(context.Background(), "k", fetch)
	}()
	<-started
	c.Invalidate("k")
	close(release)
	<-done

	_, ok := c.Peek("k")
	assert.False(t, ok)
}

func TestCache_SweepAndJanitor(t *testing.T) {
	clock := testutil.NewManualClock(testutil.TestTime())
	c := New[string](Options{StaleTime: time.Minute, CacheTime: 2 * time.Minute, Now: clock.Now})
	fetch, _ := counting("v")

	_, _, _ = c.Get(context.Background(), "a", fetch)
	_, _, _ = c.Get(context.Background(), "b", fetch)
	assert.Zero(t, c.Sweep())

	clock.Advance(3 * time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go c.RunJanitor(ctx, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}

func TestNew_CacheTimeNotBelowStale(t *testing.T) {
	c := New[int](Options{StaleTime: 10 * time.Minute, CacheTime: time.Minute})
	assert.Equal(t, 10*time.Minute, c.ttl)
}

type ctxKey struct{}

func TestCache_BackgroundRefetchUsesDetachedContext(t *testing.T) {
	clock := testutil.NewManualClock(testutil.TestTime())
	c := New[string](Options{
		StaleTime: time.Minute,
		Now:       clock.Now,
		Detach: func(ctx context.Context) context.Context {
			return context.WithValue(context.WithoutCancel(ctx), ctxKey{}, "detached")
		},
	})
	var seen []any
	var mu sync.Mutex
	fetch := func(ctx context.Context, _ string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ctx.Value(ctxKey{}))
		return "v", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := c.Get(ctx, "k", fetch)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	_, src, _ := c.Get(ctx, "k", fetch)
	cancel()
	c.Wait()

	assert.Equal(t, SourceStale, src)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{nil, "detached"}, seen)
}
