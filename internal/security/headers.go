package security

import (
	"net/http"
	"strconv"
	"time"
)

// Headers is the response header policy of the JSON API.
type Headers struct {
	// HSTS is the Strict-Transport-Security max-age sent on TLS requests; zero omits the header.
	HSTS                  time.Duration
	HSTSIncludeSubdomains bool
	// NoStore marks responses as uncacheable; cart bodies are per-session.
	NoStore bool
}

// Middleware sets the policy headers before the handler writes its response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	static := http.Header{}
	static.Set("X-Content-Type-Options", "nosniff")
	static.Set("X-Frame-Options", "DENY")
	static.Set("Referrer-Policy", "no-referrer")
	static.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	if h.NoStore {
		static.Set("Cache-Control", "no-store")
	}
	var hsts string
	if h.HSTS > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(h.HSTS/time.Second), 10)
		if h.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst := w.Header()
		for k, v := range static {
			dst[k] = v
		}
		if hsts != "" && r.TLS != nil {
			dst.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
