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

func TestGetOrLoadCachesFirstSuccess(t *testing.T) {
	m := New[string, string](Options{Size: 10})

	var calls int32
	load := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "https://cdn.example/content/42/", nil
	}

	for i := 0; i < 3; i++ {
		v, err := m.GetOrLoad(context.Background(), "42", load)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/content/42/", v)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetOrLoadRetriesUpToMaxAttempts(t *testing.T) {
	m := New[string, int](Options{MaxAttempts: 3})

	calls := 0
	_, err := m.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	_, ok := m.Get("k")
	assert.False(t, ok, "failures are not cached")

	calls = 0
	v, err := m.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("flaky")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestPermanentStopsRetrying(t *testing.T) {
	m := New[string, int](Options{MaxAttempts: 5})
	sentinel := errors.New("missing field")

	calls := 0
	_, err := m.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestGetOrLoadHonoursCancellation(t *testing.T) {
	m := New[string, int](Options{MaxAttempts: 5, Backoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := m.GetOrLoad(ctx, "k", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTTLExpiry(t *testing.T) {
	m := New[string, int](Options{TTL: 20 * time.Millisecond})
	m.Set("k", 1)

	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.Eventually(t, func() bool {
		_, ok := m.Get("k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int, int](Options{Size: 100})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := m.GetOrLoad(context.Background(), i%5, func(context.Context) (int, error) {
				return (i % 5) * 10, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, (i%5)*10, v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, m.Len())
	m.Purge()
	assert.Equal(t, 0, m.Len())
}
