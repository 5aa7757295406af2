package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/storage"
)

// ErrNotFound indicates the requested cart line or product could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// Locker serialises work on one key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service runs cart actions for many sessions against shared storage. Every mutation is a
// locked load, reduce and save of the session's cart.
type Service struct {
	Storage   Storage
	Locker    Locker
	KeyPrefix string
	LockTTL   time.Duration
	Logger    zerolog.Logger

	once  sync.Once
	local *lock.Local
}

// NewSession mints a fresh session identifier.
func (s *Service) NewSession() string {
	return uuid.NewString()
}

// Key returns the storage key for a session, rejecting identifiers that are not UUIDs.
func (s *Service) Key(session string) (string, error) {
	session = strings.TrimSpace(session)
	if _, err := uuid.Parse(session); err != nil {
		return "", fmt.Errorf("%w: session must be a UUID", ErrInvalidInput)
	}
	prefix := s.KeyPrefix
	if prefix == "" {
		prefix = "cart:"
	}
	return prefix + session, nil
}

// Get returns the persisted cart of a session; unknown sessions have an empty cart.
func (s *Service) Get(ctx context.Context, session string) (State, error) {
	if err := s.ready(); err != nil {
		return State{}, err
	}
	key, err := s.Key(session)
	if err != nil {
		return State{}, err
	}
	return s.load(ctx, key)
}

// Dispatch applies a to the session's cart and persists the result. The boolean reports
// whether anything changed; unchanged carts are not rewritten.
func (s *Service) Dispatch(ctx context.Context, session string, a Action) (State, bool, error) {
	if err := s.ready(); err != nil {
		return State{}, false, err
	}
	key, err := s.Key(session)
	if err != nil {
		return State{}, false, err
	}
	var (
		next    State
		changed bool
	)
	err = s.locker().WithLock(ctx, key, s.lockTTL(), func(ctx context.Context) error {
		current, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		next, changed = Apply(current, a)
		if !changed {
			return nil
		}
		data, err := Encode(next)
		if err != nil {
			return err
		}
		return s.Storage.Save(ctx, key, data)
	})
	if err != nil {
		obs.ObserveCartMutation(string(a.Kind), "error")
		return State{}, false, err
	}
	if changed {
		obs.ObserveCartMutation(string(a.Kind), "applied")
		s.Logger.Debug().Str("key", key).Str("action", string(a.Kind)).Int("total_qty", next.TotalQty).Msg("cart updated")
	} else {
		obs.ObserveCartMutation(string(a.Kind), "noop")
	}
	return next, changed, nil
}

func (s *Service) load(ctx context.Context, key string) (State, error) {
	data, err := s.Storage.Load(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return Empty(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load cart: %w", err)
	}
	state, reset := Restore(data, s.Logger.With().Str("key", key).Logger())
	if reset {
		obs.ObserveCartReset("malformed")
	}
	return state, nil
}

func (s *Service) ready() error {
	if s == nil || s.Storage == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

func (s *Service) locker() Locker {
	if s.Locker != nil {
		return s.Locker
	}
	s.once.Do(func() { s.local = lock.NewLocal() })
	return s.local
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 5 * time.Second
	}
	return s.LockTTL
}
