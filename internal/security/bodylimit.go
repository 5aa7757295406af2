package security

import (
	"bytes"
	"io"
	"net/http"

	"github.com/noah-isme/storefront/internal/common"
)

// BodyLimit caps request bodies at Max bytes.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 for oversized bodies. Bodies that fit are read up front and handed on
// as an in-memory reader, so a handler may read them more than once (webhook signatures).
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			b.reject(w)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, b.Max+1))
		_ = r.Body.Close()
		switch {
		case err != nil:
			common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read request body", nil)
			return
		case int64(len(body)) > b.Max:
			b.reject(w)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		next.ServeHTTP(w, r)
	})
}

func (b BodyLimit) reject(w http.ResponseWriter) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", map[string]any{"maxBytes": b.Max})
}
