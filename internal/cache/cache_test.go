package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestEntryStaleBoundary(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	entry := Entry[int]{Value: 1, FetchedAt: start, TTL: 300 * time.Second}

	assert.False(t, entry.Stale(start.Add(299*time.Second)))
	assert.True(t, entry.Stale(start.Add(300*time.Second)))
	assert.True(t, entry.Stale(start.Add(301*time.Second)))
}

func TestCacheTTL(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{now: start}
	c := New[int]("test", NewMemoryStore[int](), 300*time.Second, WithClock(clock.Now))

	var fetches int32
	fetch := func(context.Context) (int, error) {
		return int(atomic.AddInt32(&fetches, 1)), nil
	}

	ctx := context.Background()
	entry, err := c.Get(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Value)
	assert.Equal(t, start, entry.FetchedAt)

	clock.Set(start.Add(299 * time.Second))
	entry, err = c.Get(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Value, "entry should still be fresh at t+299")

	clock.Set(start.Add(301 * time.Second))
	entry, err = c.Get(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Value, "entry should be refetched at t+301")
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

func TestCacheSingleFlight(t *testing.T) {
	c := New[string]("sf", nil, time.Minute)

	var fetches int32
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return "v", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := c.Get(context.Background(), "shared", fetch)
			if err == nil {
				results[i] = entry.Value
			}
		}(i)
	}

	// let the goroutines pile up on the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
	for _, r := range results {
		assert.Equal(t, "v", r)
	}
}

func TestCacheWaiterHonoursOwnDeadline(t *testing.T) {
	c := New[string]("deadline", nil, time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	var fetches int32
	fetch := func(context.Context) (string, error) {
		if atomic.AddInt32(&fetches, 1) == 1 {
			close(started)
		}
		<-release
		return "v", nil
	}

	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "k", fetch)
		leaderDone <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	begin := time.Now()
	_, err := c.Get(ctx, "k", fetch)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), 500*time.Millisecond)

	close(release)
	require.NoError(t, <-leaderDone)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestCacheLeaderCancelDoesNotFailWaiters(t *testing.T) {
	c := New[string]("cancel", nil, time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		close(started)
		select {
		case <-release:
			return "v", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Get(leaderCtx, "k", fetch)
		leaderDone <- err
	}()
	<-started

	waiterDone := make(chan string, 1)
	go func() {
		entry, err := c.Get(context.Background(), "k", fetch)
		if err != nil {
			waiterDone <- "error: " + err.Error()
			return
		}
		waiterDone <- entry.Value
	}()

	cancelLeader()
	require.ErrorIs(t, <-leaderDone, context.Canceled)

	// the waiter joins the in-flight fetch, which outlives the cancelled leader
	time.Sleep(20 * time.Millisecond)
	close(release)
	assert.Equal(t, "v", <-waiterDone)
}

func TestCacheFetchTimeoutBoundsSharedFetch(t *testing.T) {
	c := New[int]("bounded", nil, time.Minute, WithFetchTimeout(20*time.Millisecond))

	_, err := c.Get(context.Background(), "k", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCacheFetchErrorNotCached(t *testing.T) {
	c := New[int]("err", nil, time.Minute)
	boom := errors.New("boom")

	_, err := c.Get(context.Background(), "k", func(context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)

	entry, err := c.Get(context.Background(), "k", func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, entry.Value)
}

func TestCacheStaleEntryNotServedOnFailure(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{now: start}
	c := New[int]("stale", nil, 10*time.Second, WithClock(clock.Now))

	_, err := c.Get(context.Background(), "k", func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	clock.Set(start.Add(time.Minute))
	_, err = c.Get(context.Background(), "k", func(context.Context) (int, error) {
		return 0, errors.New("source down")
	})
	assert.Error(t, err)
}

func TestLookupAndPut(t *testing.T) {
	c := New[int]("put", nil, time.Minute)
	_, ok := c.Lookup(context.Background(), "k")
	assert.False(t, ok)

	c.Put(context.Background(), "k", 9)
	entry, ok := c.Lookup(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, 9, entry.Value)
}
