package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/storefront/internal/common"
)

// NewLogger configures a zerolog logger writing to stdout using the provided format and level.
func NewLogger(format, level string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, format, level)
}

// NewLoggerTo is NewLogger with an explicit destination; the cart CLI logs to stderr.
func NewLoggerTo(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := w
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// RequestLogger writes one http_request event per request. Server errors log at error level
// and client errors at warn.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware logs each request once the handler has returned.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, info := common.WithRequestInfo(r.Context())
		rec := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.Status()
		level := zerolog.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zerolog.WarnLevel
		}
		evt := l.Logger.WithLevel(level).
			Str("method", r.Method).
			Str("route", Route(r)).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int64("bytes", rec.BytesWritten()).
			Str("request_id", middleware.GetReqID(ctx)).
			Str("client_ip", common.ClientIP(r))

		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if session := chi.URLParam(r, "session"); session != "" {
			evt = evt.Str("session", session)
		}
		if actor := info.Actor(); actor != "" {
			evt = evt.Str("actor", actor)
		}
		evt.Msg("http_request")
	})
}
