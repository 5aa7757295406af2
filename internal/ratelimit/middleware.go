// Package ratelimit throttles cart mutations per client.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/storefront/internal/common"
)

// Rule is a budget of Max events per Window.
type Rule struct {
	Window time.Duration
	Max    int
}

func (r Rule) disabled() bool { return r.Max <= 0 || r.Window <= 0 }

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Backend counts events per key.
type Backend interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}

// Handler rejects requests whose key has spent its budget.
type Handler struct {
	Backend Backend
	Rule    Rule
	Key     func(*http.Request) string
	// OnError observes backend failures; the request is let through regardless.
	OnError func(*http.Request, error)
}

// ByClientIP keys requests on the caller's address under a scope, so different route groups
// get separate budgets.
func ByClientIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}

// Middleware wraps next with the limit.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Backend == nil || h.Key == nil || h.Rule.disabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Backend.Allow(r.Context(), h.Key(r), h.Rule)
		if err != nil {
			if h.OnError != nil {
				h.OnError(r, err)
			}
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", strconv.Itoa(h.Rule.Max))
		hdr.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		wait := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
		hdr.Set("Retry-After", strconv.Itoa(max(wait, 1)))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many cart updates, slow down", map[string]any{
			"limit":  h.Rule.Max,
			"window": h.Rule.Window.String(),
		})
	})
}
