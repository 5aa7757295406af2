package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBodyLimitPassesSmallBodiesAndAllowsRereads(t *testing.T) {
	var first, second string
	handler := BodyLimit{Max: 10}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		first = string(data)
		again, err := r.GetBody()
		require.NoError(t, err)
		data, err = io.ReadAll(again)
		require.NoError(t, err)
		second = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payload", strings.NewReader("hello")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hello", first)
	require.Equal(t, "hello", second)
}

func TestBodyLimitRejectsOversized(t *testing.T) {
	handler := BodyLimit{Max: 5}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	streamed := httptest.NewRequest(http.MethodPost, "/payload", strings.NewReader("excessive"))
	streamed.ContentLength = -1
	declared := httptest.NewRequest(http.MethodPost, "/payload", strings.NewReader("content"))
	declared.ContentLength = 100

	for name, req := range map[string]*http.Request{"streamed": streamed, "declared": declared} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code, name)
		require.JSONEq(t, `{"error":{"code":"PAYLOAD_TOO_LARGE","message":"request body too large","details":{"maxBytes":5}}}`, rr.Body.String(), name)
	}
}
