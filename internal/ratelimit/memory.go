package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Memory is a per-process fixed window limiter for deployments without Redis.
type Memory struct {
	store limiter.Store

	mu    sync.Mutex
	rules map[Rule]*limiter.Limiter
}

// NewMemory returns a limiter whose counters live in this process.
func NewMemory() *Memory {
	return &Memory{
		store: memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          "ratelimit",
			CleanUpInterval: time.Minute,
		}),
		rules: make(map[Rule]*limiter.Limiter),
	}
}

// Allow counts an event for key against rule.
func (m *Memory) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if rule.disabled() {
		return Decision{Allowed: true, Remaining: rule.Max, ResetAt: time.Now().Add(rule.Window)}, nil
	}
	// Counters are namespaced per rule so two budgets on one key never share a window.
	lc, err := m.limiter(rule).Get(ctx, fmt.Sprintf("%d/%s:%s", rule.Max, rule.Window, key))
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}
	return Decision{
		Allowed:   !lc.Reached,
		Remaining: int(lc.Remaining),
		ResetAt:   time.Unix(lc.Reset, 0),
	}, nil
}

func (m *Memory) limiter(rule Rule) *limiter.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rules[rule]
	if !ok {
		l = limiter.New(m.store, limiter.Rate{Period: rule.Window, Limit: int64(rule.Max)})
		m.rules[rule] = l
	}
	return l
}
