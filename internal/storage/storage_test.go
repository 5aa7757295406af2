package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/noah-isme/storefront/internal/storage"
)

type backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

func exerciseBackend(t *testing.T, b backend) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, b.Ping(ctx))

	_, err := b.Load(ctx, "cart:missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, b.Save(ctx, "cart:abc", []byte(`{"items":[]}`)))
	data, err := b.Load(ctx, "cart:abc")
	require.NoError(t, err)
	require.JSONEq(t, `{"items":[]}`, string(data))

	require.NoError(t, b.Save(ctx, "cart:abc", []byte(`{"items":[],"totalQty":0}`)))
	data, err = b.Load(ctx, "cart:abc")
	require.NoError(t, err)
	require.JSONEq(t, `{"items":[],"totalQty":0}`, string(data))

	require.NoError(t, b.Delete(ctx, "cart:abc"))
	require.NoError(t, b.Delete(ctx, "cart:abc"))
	_, err = b.Load(ctx, "cart:abc")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := storage.NewRedis(client, time.Hour)
	exerciseBackend(t, b)

	require.NoError(t, b.Save(context.Background(), "cart:ttl", []byte("{}")))
	require.Equal(t, time.Hour, mr.TTL("cart:ttl"))
}

func TestFileBackend(t *testing.T) {
	b, err := storage.NewFile(filepath.Join(t.TempDir(), "carts"))
	require.NoError(t, err)
	exerciseBackend(t, b)

	path, err := b.Path("cart:1/../x")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(b.Dir, "cart_1_.._x.json"), path)

	_, err = b.Path("..")
	require.Error(t, err)
}

func TestSQLiteBackend(t *testing.T) {
	b, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "carts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	exerciseBackend(t, b)
}

func TestFileWatchSeesExternalWrites(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b, err := storage.NewFile(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan []byte, 16)
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(ctx, "cart", func(data []byte) {
			select {
			case changes <- data:
			default:
			}
		})
	}()

	payload := []byte(`{"items":[],"totalQty":0,"totalPrice":0}`)
	require.Eventually(t, func() bool {
		require.NoError(t, b.Save(context.Background(), "cart", payload))
		select {
		case got := <-changes:
			return string(got) == string(payload)
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
