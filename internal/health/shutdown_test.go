package health_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/health"
)

func TestReadyReportsDrainWithoutProbing(t *testing.T) {
	var probed atomic.Int32
	h := health.Handler{Probes: map[string]health.Probe{
		"storage": func(context.Context) error { probed.Add(1); return nil },
	}}
	t.Cleanup(func() { health.SetReady(true) })

	ready := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		return rec
	}

	require.Equal(t, http.StatusOK, ready().Code)
	require.EqualValues(t, 1, probed.Load())

	health.SetReady(false)
	rec := ready()
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"shutting_down"}`, rec.Body.String())
	require.EqualValues(t, 1, probed.Load(), "probes must not run while draining")
}
