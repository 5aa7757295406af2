package common_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
)

func newIdem(t *testing.T) (common.Idem, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client, TTL: time.Hour}, mr
}

func TestIdemReplaysStoredResponse(t *testing.T) {
	idem, _ := newIdem(t)
	var calls int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"call": n}})
	}))

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/carts/s/checkout/intent", nil)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	first := send("k1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := send("k1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	send("k2")
	send("")
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestIdemInFlightConflict(t *testing.T) {
	idem, mr := newIdem(t)
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	require.NoError(t, mr.Set(idem.Key(req, "busy"), "pending"))

	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req.Header.Set("Idempotency-Key", "busy")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENT_REPLAY")
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem, mr := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_REJECTED", "no", nil)
	}))
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Idempotency-Key", "retry-me")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.False(t, mr.Exists(idem.Key(req, "retry-me")))
}
