package onlyfans

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls atomic.Int32
	fail  atomic.Bool
	gate  chan struct{}
}

func (f *countingFetcher) User(ctx context.Context, key string) (*User, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.fail.Load() {
		return nil, errors.New("boom")
	}
	return &User{ID: int64(len(key)), Username: key}, nil
}

func TestProfileCacheReturnsSameProfile(t *testing.T) {
	f := &countingFetcher{}
	c := NewProfileCache(f, 0)

	a, err := c.Lookup(context.Background(), "alice")
	require.NoError(t, err)
	b, err := c.Lookup(context.Background(), "alice")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestProfileCacheInvalidateAndPurge(t *testing.T) {
	f := &countingFetcher{}
	c := NewProfileCache(f, 4)

	_, _ = c.Lookup(context.Background(), "alice")
	c.Invalidate("alice")
	_, _ = c.Lookup(context.Background(), "alice")
	assert.Equal(t, int32(2), f.calls.Load())

	_, _ = c.Lookup(context.Background(), "bob")
	c.Purge()
	assert.Zero(t, c.Len())
	_, _ = c.Lookup(context.Background(), "bob")
	assert.Equal(t, int32(4), f.calls.Load())
}

func TestProfileCacheEvictsLeastRecentlyUsed(t *testing.T) {
	f := &countingFetcher{}
	c := NewProfileCache(f, 2)

	_, _ = c.Lookup(context.Background(), "a")
	_, _ = c.Lookup(context.Background(), "b")
	_, _ = c.Lookup(context.Background(), "a")
	_, _ = c.Lookup(context.Background(), "c")
	assert.Equal(t, 2, c.Len())

	_, _ = c.Lookup(context.Background(), "a")
	assert.Equal(t, int32(3), f.calls.Load())
	_, _ = c.Lookup(context.Background(), "b")
	assert.Equal(t, int32(4), f.calls.Load())
}

func TestProfileCacheDoesNotCacheErrors(t *testing.T) {
	f := &countingFetcher{}
	f.fail.Store(true)
	c := NewProfileCache(f, 2)

	_, err := c.Lookup(context.Background(), "a")
	require.Error(t, err)
	assert.Zero(t, c.Len())

	f.fail.Store(false)
	u, err := c.Lookup(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", u.Username)
}

func TestProfileCacheSharesInflightLookup(t *testing.T) {
	f := &countingFetcher{gate: make(chan struct{})}
	c := NewProfileCache(f, 2)

	var wg sync.WaitGroup
	results := make([]*User, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Lookup(context.Background(), "shared")
		}(i)
	}
	for f.calls.Load() == 0 {
		runtime.Gosched()
	}
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, u := range results {
		assert.Same(t, results[0], u)
	}
}

func TestProfileCacheCallerCancelLeavesSharedFetch(t *testing.T) {
	f := &countingFetcher{gate: make(chan struct{})}
	c := NewProfileCache(f, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Lookup(ctx, "slow")
		done <- err
	}()
	for f.calls.Load() == 0 {
		runtime.Gosched()
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.gate)
	u, err := c.Lookup(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, "slow", u.Username)
	assert.Equal(t, int32(1), f.calls.Load())
}
