package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/storage"
)

// DefaultKey is the storage key a single-user client keeps its cart under.
const DefaultKey = "cart"

// Storage persists serialised cart states by key.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Store is the client-side state manager: one cart, held in memory, written through to
// storage after every change.
type Store struct {
	storage Storage
	key     string
	logger  zerolog.Logger

	mu    sync.Mutex
	state State
}

// StoreConfig configures OpenStore.
type StoreConfig struct {
	Storage Storage
	Key     string
	Logger  zerolog.Logger
}

// OpenStore restores the persisted cart (or starts empty) and returns a ready Store. A missing
// key starts empty; unreadable content is discarded with a warning.
func OpenStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Storage == nil {
		return nil, errors.New("cart: storage not configured")
	}
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	st := &Store{storage: cfg.Storage, key: key, logger: cfg.Logger}
	data, err := cfg.Storage.Load(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		st.state = Empty()
	case err != nil:
		return nil, fmt.Errorf("load cart %q: %w", key, err)
	default:
		s, reset := Restore(data, cfg.Logger.With().Str("key", key).Logger())
		if reset {
			obs.ObserveCartReset("malformed")
		}
		st.state = s
	}
	return st, nil
}

// Key returns the storage key of the cart.
func (s *Store) Key() string { return s.key }

// State returns a copy of the current cart.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Dispatch applies a to the cart and persists the result before returning. No-op actions do
// not write. When the write fails the in-memory state keeps the change and the error is
// returned so the caller can retry or report it.
func (s *Store) Dispatch(ctx context.Context, a Action) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed := Apply(s.state, a)
	if !changed {
		obs.ObserveCartMutation(string(a.Kind), "noop")
		return next.Clone(), nil
	}
	s.state = next
	data, err := Encode(next)
	if err == nil {
		err = s.storage.Save(ctx, s.key, data)
	}
	if err != nil {
		obs.ObserveCartMutation(string(a.Kind), "error")
		s.logger.Error().Err(err).Str("key", s.key).Str("action", string(a.Kind)).Msg("persist cart failed")
		return next.Clone(), fmt.Errorf("persist cart: %w", err)
	}
	obs.ObserveCartMutation(string(a.Kind), "applied")
	return next.Clone(), nil
}

// Reload replaces the in-memory cart with data written by another process. Nil data means the
// key was deleted.
func (s *Store) Reload(data []byte) State {
	restored, reset := Restore(data, s.logger.With().Str("key", s.key).Logger())
	if reset {
		obs.ObserveCartReset("malformed")
	}
	s.mu.Lock()
	s.state = restored
	s.mu.Unlock()
	return restored.Clone()
}
