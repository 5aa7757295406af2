package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
)

func TestBasicAuth(t *testing.T) {
	hash, err := argon2id.CreateHash("s3cret", &argon2id.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	guard := BasicAuth{User: "ops", Hash: hash, Logger: zerolog.Nop()}
	var actor string
	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ = common.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		user   string
		pass   string
		noAuth bool
		want   int
	}{
		{name: "valid", user: "ops", pass: "s3cret", want: http.StatusNoContent},
		{name: "wrong password", user: "ops", pass: "nope", want: http.StatusUnauthorized},
		{name: "wrong user", user: "root", pass: "s3cret", want: http.StatusUnauthorized},
		{name: "missing", noAuth: true, want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor = ""
			req := httptest.NewRequest(http.MethodPost, "/admin/catalog/invalidate", nil)
			if !tc.noAuth {
				req.SetBasicAuth(tc.user, tc.pass)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusUnauthorized {
				require.Contains(t, rr.Header().Get("WWW-Authenticate"), "Basic")
				require.Empty(t, actor)
			} else {
				require.Equal(t, "ops", actor)
			}
		})
	}
}

func TestBasicAuthUnconfigured(t *testing.T) {
	handler := BasicAuth{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.SetBasicAuth("ops", "anything")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestBasicAuthBadHash(t *testing.T) {
	handler := BasicAuth{User: "ops", Hash: "plaintext", Logger: zerolog.Nop()}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.SetBasicAuth("ops", "plaintext")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	ok, err := argon2id.ComparePasswordAndHash("pw", hash)
	require.NoError(t, err)
	require.True(t, ok)
}
