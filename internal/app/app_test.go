package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/alexedwards/argon2id"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/app"
	"github.com/noah-isme/storefront/internal/config"
)

const catalogYAML = `products:
  - id: kaos-hitam
    title: Kaos Hitam
    price: 1000
    discount: 10
    inStock: true
  - id: mug
    title: Mug
    price: 250
    inStock: true
`

type cartBody struct {
	Data struct {
		SessionID  string  `json:"sessionId"`
		TotalQty   int     `json:"totalQty"`
		TotalPrice float64 `json:"totalPrice"`
		Changed    bool    `json:"changed"`
		Items      []struct {
			ID       string `json:"id"`
			Quantity int    `json:"quantity"`
		} `json:"items"`
	} `json:"data"`
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogYAML), 0o600))
	return &config.Config{
		AppEnv:          "test",
		CartStorage:     config.StorageFile,
		CartStateDir:    filepath.Join(dir, "carts"),
		CartKeyPrefix:   "cart:",
		CartTTL:         time.Hour,
		CartLockTTL:     time.Second,
		CatalogFile:     catalogPath,
		CatalogCacheTTL: time.Minute,
		Currency:        "INR",
		IdempotencyTTL:  time.Hour,
		RateLimitWindow: time.Minute,
		RateLimitMax:    100,
		BodyLimitBytes:  1 << 16,
	}
}

func build(t *testing.T, cfg *config.Config, opts app.Options) http.Handler {
	t.Helper()
	deps, err := app.Build(context.Background(), cfg, zerolog.Nop(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })
	return deps.Router(app.RouterOptions{})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartBody {
	t.Helper()
	var out cartBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCartFlowOnFileBackend(t *testing.T) {
	h := build(t, baseConfig(t), app.Options{})

	rec := do(t, h, http.MethodPost, "/api/v1/carts", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeCart(t, rec).Data.SessionID
	require.NotEmpty(t, session)
	base := "/api/v1/carts/" + session

	rec = do(t, h, http.MethodPost, base+"/items", `{"productId":"kaos-hitam","qty":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeCart(t, rec)
	require.Equal(t, 2, body.Data.TotalQty)
	require.InDelta(t, 1800, body.Data.TotalPrice, 1e-9)

	rec = do(t, h, http.MethodPost, base+"/items", `{"productId":"mug"}`)
	require.Equal(t, 3, decodeCart(t, rec).Data.TotalQty)

	rec = do(t, h, http.MethodPost, base+"/items/mug/increase", "")
	require.InDelta(t, 2300, decodeCart(t, rec).Data.TotalPrice, 1e-9)

	rec = do(t, h, http.MethodPut, base+"/items/kaos-hitam", `{"qty":0}`)
	body = decodeCart(t, rec)
	require.Len(t, body.Data.Items, 1)
	require.Equal(t, "mug", body.Data.Items[0].ID)

	rec = do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, decodeCart(t, rec).Data.TotalQty)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = do(t, h, http.MethodPost, base+"/checkout/intent", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/sessions/"+session, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, base, "")
	require.Zero(t, decodeCart(t, rec).Data.TotalQty)

	rec = do(t, h, http.MethodGet, "/api/v1/carts/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRedisBackendWithRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := baseConfig(t)
	cfg.CartStorage = config.StorageRedis
	cfg.RateLimitMax = 3
	h := build(t, cfg, app.Options{Redis: client})

	session := decodeCart(t, do(t, h, http.MethodPost, "/api/v1/carts", "")).Data.SessionID
	rec := do(t, h, http.MethodPost, "/api/v1/carts/"+session+"/items", `{"productId":"mug","qty":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, mr.Exists("cart:"+session))

	rec = do(t, h, http.MethodGet, "/api/v1/carts/"+session, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/carts/"+session, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), "RATE_LIMITED")

	rec = do(t, h, http.MethodGet, "/api/v1/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminInvalidateRequiresCredentials(t *testing.T) {
	cfg := baseConfig(t)
	h := build(t, cfg, app.Options{})
	rec := do(t, h, http.MethodPost, "/api/v1/admin/catalog/invalidate", `{}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	hash, err := argon2id.CreateHash("pw", &argon2id.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	cfg = baseConfig(t)
	cfg.AdminUser, cfg.AdminHash = "ops", hash
	h = build(t, cfg, app.Options{})

	rec = do(t, h, http.MethodPost, "/api/v1/admin/catalog/invalidate", `{}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/catalog/invalidate", strings.NewReader(`{"ids":["mug"]}`))
	req.SetBasicAuth("ops", "pw")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestBuildRejectsRedisWithoutClient(t *testing.T) {
	cfg := baseConfig(t)
	cfg.CartStorage = config.StorageRedis
	_, err := app.Build(context.Background(), cfg, zerolog.Nop(), app.Options{})
	require.Error(t, err)
}
