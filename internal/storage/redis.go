package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores values as plain strings, refreshing the TTL on every write.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedis constructs a Redis backend. A non-positive ttl keeps keys forever.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{Client: client, TTL: ttl}
}

// Load returns the stored value for key.
func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("storage: redis client not configured")
	}
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Save overwrites the value for key.
func (r *Redis) Save(ctx context.Context, key string, data []byte) error {
	if r == nil || r.Client == nil {
		return errors.New("storage: redis client not configured")
	}
	ttl := r.TTL
	if ttl < 0 {
		ttl = 0
	}
	return r.Client.Set(ctx, key, data, ttl).Err()
}

// Delete removes key. Deleting a missing key is not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if r == nil || r.Client == nil {
		return errors.New("storage: redis client not configured")
	}
	return r.Client.Del(ctx, key).Err()
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("storage: redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
