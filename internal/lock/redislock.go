package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned when the lease expired while its holder was still working, so
// another holder may have run concurrently.
var ErrLeaseLost = errors.New("lock: lease expired before release")

// releaseScript deletes the lease only while it still carries the holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker is a lease lock in Redis. It serialises cart mutations across API instances that
// share one Redis.
type Locker struct {
	Client       redis.UniversalClient
	Prefix       string
	RetryBackoff time.Duration
}

// WithLock runs fn while holding the lease for key, polling until the lease is free or ctx
// ends. The lease expires after ttl even if the holder never releases it.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.Client == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	lease := l.Prefix + key
	if l.Prefix == "" {
		lease = "lock:" + key
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, lease, token, ttl); err != nil {
		return err
	}

	fnErr := fn(ctx)

	// Release even when the caller's context is already done.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	released, err := releaseScript.Run(releaseCtx, l.Client, []string{lease}, token).Int()
	switch {
	case err != nil:
		return errors.Join(fnErr, fmt.Errorf("lock: release %s: %w", lease, err))
	case released == 0:
		return errors.Join(fnErr, ErrLeaseLost)
	}
	return fnErr
}

func (l Locker) acquire(ctx context.Context, lease, token string, ttl time.Duration) error {
	wait := l.RetryBackoff
	if wait <= 0 {
		wait = 50 * time.Millisecond
	}
	for {
		ok, err := l.Client.SetNX(ctx, lease, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock: acquire %s: %w", lease, err)
		}
		if ok {
			return nil
		}
		// Jitter keeps waiting holders from polling in lockstep.
		timer := time.NewTimer(wait/2 + rand.N(wait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
