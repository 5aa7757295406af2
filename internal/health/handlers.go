package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/storefront/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the process readiness flag; the API clears it when shutdown starts so load
// balancers drain traffic before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	// Probes are keyed by the name reported in the readiness body, e.g. "storage" or "catalog".
	Probes  map[string]Probe
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes, which run concurrently.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "shutting_down"})
		return
	}

	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu      sync.Mutex
		checks  = make(map[string]string, len(names))
		healthy = true
	)
	g, ctx := errgroup.WithContext(r.Context())
	for _, name := range names {
		probe := h.Probes[name]
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, h.timeout())
			defer cancel()
			status := "ok"
			if probe == nil {
				status = "not configured"
			} else if err := probe(pctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			checks[name] = status
			if status != "ok" {
				healthy = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	code, overall := http.StatusOK, "ok"
	if !healthy {
		code, overall = http.StatusServiceUnavailable, "degraded"
	}
	common.JSON(w, code, map[string]any{"status": overall, "checks": checks})
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
