package catalog_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/catalog"
)

func TestLookupDeduplicatesConcurrentMisses(t *testing.T) {
	cache := catalog.NewCache(time.Minute, nil, zerolog.Nop())
	var calls int32
	release := make(chan struct{})

	load := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := catalog.Lookup(context.Background(), cache, "catalog:k", load)
			require.NoError(t, err)
			results <- v
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for v := range results {
		require.Equal(t, "value", v)
	}
}

func TestLookupSurvivesFirstCallerCancelling(t *testing.T) {
	cache := catalog.NewCache(time.Minute, nil, zerolog.Nop())
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "value", nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := catalog.Lookup(firstCtx, cache, "catalog:k", load)
		firstErr <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		v, err := catalog.Lookup(context.Background(), cache, "catalog:k", load)
		require.NoError(t, err)
		second <- v
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)
	require.Equal(t, "value", <-second)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	v, err := catalog.Lookup(context.Background(), cache, "catalog:k", load)
	require.NoError(t, err)
	require.Equal(t, "value", v, "the completed load is cached")
}

func TestLookupExpiresAfterTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := catalog.NewCache(time.Minute, nil, zerolog.Nop())
	cache.Now = func() time.Time { return now }

	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := catalog.Lookup(context.Background(), cache, "catalog:n", load)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	now = now.Add(30 * time.Second)
	v, _ = catalog.Lookup(context.Background(), cache, "catalog:n", load)
	require.Equal(t, 1, v)

	now = now.Add(31 * time.Second)
	v, _ = catalog.Lookup(context.Background(), cache, "catalog:n", load)
	require.Equal(t, 2, v)
}

func TestLookupDoesNotCacheErrors(t *testing.T) {
	cache := catalog.NewCache(time.Minute, nil, zerolog.Nop())
	boom := errors.New("source down")
	fail := true
	load := func(context.Context) (string, error) {
		if fail {
			return "", boom
		}
		return "ok", nil
	}

	_, err := catalog.Lookup(context.Background(), cache, "catalog:e", load)
	require.ErrorIs(t, err, boom)

	fail = false
	v, err := catalog.Lookup(context.Background(), cache, "catalog:e", load)
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestInvalidateDropsEntries(t *testing.T) {
	cache := catalog.NewCache(time.Minute, nil, zerolog.Nop())
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, _ = catalog.Lookup(ctx, cache, "catalog:a", load)
	_, _ = catalog.Lookup(ctx, cache, "catalog:b", load)
	require.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Invalidate(ctx, "catalog:a"))
	require.Equal(t, 1, cache.Len())
	v, _ := catalog.Lookup(ctx, cache, "catalog:a", load)
	require.Equal(t, 3, v)

	require.NoError(t, cache.InvalidateAll(ctx))
	require.Zero(t, cache.Len())
}

func TestRemoteTierSharesValuesBetweenCaches(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	remote := catalog.NewRemoteCache(client, time.Minute)
	first := catalog.NewCache(time.Minute, remote, zerolog.Nop())
	second := catalog.NewCache(time.Minute, remote, zerolog.Nop())
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]catalog.Product, error) {
		calls++
		return []catalog.Product{{ID: "p1", Title: "Lamp", Price: 10}}, nil
	}

	got, err := catalog.Lookup(ctx, first, "catalog:products", load)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, mr.Exists("catalog:products"))

	got, err = catalog.Lookup(ctx, second, "catalog:products", load)
	require.NoError(t, err)
	require.Equal(t, "Lamp", got[0].Title)
	require.Equal(t, 1, calls)

	require.NoError(t, first.InvalidateAll(ctx))
	require.False(t, mr.Exists("catalog:products"))
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	v, err := catalog.Lookup(context.Background(), nil, "catalog:x", func(context.Context) (string, error) { return "direct", nil })
	require.NoError(t, err)
	require.Equal(t, "direct", v)
}
