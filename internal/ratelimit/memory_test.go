package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryAllow(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rule := Rule{Window: time.Minute, Max: 3}

	for i := 0; i < 3; i++ {
		d, err := m.Allow(ctx, "ip:1", rule)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i+1)
		require.Equal(t, 2-i, d.Remaining)
	}
	d, err := m.Allow(ctx, "ip:1", rule)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.True(t, d.ResetAt.After(time.Now()))

	d, err = m.Allow(ctx, "ip:2", rule)
	require.NoError(t, err)
	require.True(t, d.Allowed, "other keys keep their own budget")

	d, err = m.Allow(ctx, "ip:1", Rule{Window: time.Minute, Max: 10})
	require.NoError(t, err)
	require.True(t, d.Allowed, "a different rule keeps its own counters")
}

func TestMemoryMiddlewareRespondsWithJSON(t *testing.T) {
	handler := Handler{
		Backend: NewMemory(),
		Rule:    Rule{Window: time.Minute, Max: 1},
		Key:     ByClientIP("cart"),
	}
	next := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/carts", nil)
	req.RemoteAddr = "10.0.0.7:5555"

	rr := httptest.NewRecorder()
	next.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	next.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.JSONEq(t, `{"error":{"code":"RATE_LIMITED","message":"too many cart updates, slow down","details":{"limit":1,"window":"1m0s"}}}`, rr.Body.String())
	require.NotEmpty(t, rr.Header().Get("Retry-After"))

	other := req.Clone(req.Context())
	other.RemoteAddr = "10.0.0.8:5555"
	rr = httptest.NewRecorder()
	next.ServeHTTP(rr, other)
	require.Equal(t, http.StatusNoContent, rr.Code)
}
