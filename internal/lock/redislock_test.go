package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/lock"
)

type withLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// assertSerialised runs a second holder while the first is still inside the critical section
// and checks they ran strictly one after the other.
func assertSerialised(t *testing.T, locker withLocker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	errs := make(chan error, 2)

	go func() {
		errs <- locker.WithLock(ctx, "cart:demo", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	go func() {
		errs <- locker.WithLock(ctx, "cart:demo", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"first"}, order)
	mu.Unlock()
	close(releaseFirst)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRedisLockerSerialises(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	assertSerialised(t, lock.Locker{Client: client, RetryBackoff: 5 * time.Millisecond})
	require.False(t, mr.Exists("lock:cart:demo"))
}

func TestRedisLockerHonoursContext(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set("lock:busy", "someone-else"))
	locker := lock.Locker{Client: client, RetryBackoff: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	called := false
	err = locker.WithLock(ctx, "busy", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)
}

func TestLocalSerialises(t *testing.T) {
	assertSerialised(t, lock.NewLocal())
}

func TestLocalHonoursContext(t *testing.T) {
	l := lock.NewLocal()
	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "k", 0, func(context.Context) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, "k", 0, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)

	require.NoError(t, l.WithLock(context.Background(), "k", 0, func(context.Context) error { return nil }))
}

func TestRedisLockerReportsLostLease(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := lock.Locker{Client: client, Prefix: "lease:"}
	err = locker.WithLock(context.Background(), "cart:slow", time.Second, func(context.Context) error {
		mr.FastForward(2 * time.Second)
		require.NoError(t, mr.Set("lease:cart:slow", "another-holder"))
		return nil
	})
	require.ErrorIs(t, err, lock.ErrLeaseLost)
	require.True(t, mr.Exists("lease:cart:slow"), "a foreign lease is left alone")
}
