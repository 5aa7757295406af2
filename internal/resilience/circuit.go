package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the position of a breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker trips after a run of consecutive failures against one upstream. Once the cooldown
// has passed a single probe call is let through; its outcome closes or re-opens the breaker.
type Breaker struct {
	target    string
	threshold int
	cooldown  time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	state    State
	streak   int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker for target that opens after threshold consecutive
// failures and stays open for cooldown.
func NewBreaker(target string, threshold int, cooldown time.Duration) *Breaker {
	target = strings.TrimSpace(target)
	if target == "" {
		target = "default"
	}
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	b := &Breaker{
		target:    target,
		threshold: threshold,
		cooldown:  cooldown,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	BreakerState.WithLabelValues(target).Set(0)
	return b
}

// WithLogger sets the logger used for state transitions.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
	return b
}

// WithClock replaces the time source; tests use it to skip the cooldown.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
	return b
}

// Target returns the upstream name used in metrics and logs.
func (b *Breaker) Target() string {
	if b == nil {
		return ""
	}
	return b.target
}

// State returns the current state.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may go out now. A nil breaker allows everything.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of a call that Allow let through.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
	case Closed:
		if success {
			b.streak = 0
			return
		}
		b.streak++
		if b.streak >= b.threshold {
			b.moveLocked(ctx, Open)
		}
	}
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.streak = 0
	if next == Open {
		b.openedAt = b.now()
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}
	BreakerState.WithLabelValues(b.target).Set(float64(next))
	BreakerTransitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()

	evt := b.logger.Warn()
	if next == Closed {
		evt = b.logger.Info()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Str("target", b.target).Str("from", prev.String()).Str("to", next.String()).Msg("breaker state changed")
}
