package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/storefront/internal/obs"
)

const keyPrefix = "catalog:"

// Cache is a read-through product cache. Entries expire after TTL or on explicit
// invalidation, concurrent misses for one key share a single load, and an optional Redis tier
// lets instances share loaded values.
type Cache struct {
	TTL time.Duration
	// LoadTimeout bounds a shared load; it defaults to 10s.
	LoadTimeout time.Duration
	Remote      *RemoteCache
	Logger      zerolog.Logger
	Now         func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]entry
	epoch   uint64
}

type entry struct {
	value   any
	expires time.Time
}

// NewCache returns a cache holding entries for ttl.
func NewCache(ttl time.Duration, remote *RemoteCache, logger zerolog.Logger) *Cache {
	return &Cache{TTL: ttl, Remote: remote, Logger: logger}
}

// Lookup returns the cached value for key, loading it on a miss. Load errors are returned to
// every waiting caller and are not cached. A caller whose ctx ends stops waiting with ctx's
// error; the load carries on for the others.
func Lookup[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	if v, ok := c.get(key); ok {
		if typed, ok := v.(T); ok {
			obs.ObserveCatalogLookup("hit")
			return typed, nil
		}
	}
	epoch := c.currentEpoch()
	ch := c.group.DoChan(key, func() (any, error) {
		// Waiters other than ctx's owner share this load, so it ignores ctx cancellation.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout())
		defer cancel()

		var remote T
		ok, err := c.Remote.GetJSON(ctx, key, &remote)
		if err != nil {
			c.Logger.Warn().Err(err).Str("key", key).Msg("remote catalog cache read failed")
		}
		if ok {
			obs.ObserveCatalogLookup("remote")
			c.put(key, remote, epoch)
			return remote, nil
		}
		obs.ObserveCatalogLookup("miss")
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.put(key, loaded, epoch) {
			if err := c.Remote.SetJSON(ctx, key, loaded); err != nil {
				c.Logger.Warn().Err(err).Str("key", key).Msg("remote catalog cache write failed")
			}
		}
		return loaded, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			obs.ObserveCatalogLookup("shared")
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Invalidate drops the given keys locally and remotely.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.epoch++
	for _, k := range keys {
		delete(c.entries, k)
		c.group.Forget(k)
	}
	c.mu.Unlock()
	return c.Remote.Delete(ctx, keys...)
}

// InvalidateAll drops every catalog entry locally and remotely.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.epoch++
	for k := range c.entries {
		c.group.Forget(k)
	}
	c.entries = nil
	c.mu.Unlock()
	return c.Remote.DeletePrefix(ctx, keyPrefix)
}

// Len reports the number of live local entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return e.value, true
}

// put stores value unless an invalidation happened since the load began.
func (c *Cache) put(key string, value any, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	if c.entries == nil {
		c.entries = make(map[string]entry)
	}
	c.entries[key] = entry{value: value, expires: c.now().Add(c.ttl())}
	return true
}

func (c *Cache) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

func (c *Cache) ttl() time.Duration {
	if c.TTL <= 0 {
		return 5 * time.Minute
	}
	return c.TTL
}

func (c *Cache) loadTimeout() time.Duration {
	if c.LoadTimeout <= 0 {
		return 10 * time.Second
	}
	return c.LoadTimeout
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
